// Package cli renders command results as tables, JSON or YAML.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"toolhost/internal/registry"
	"toolhost/internal/reporting"
)

// OutputFormat represents the output format for CLI commands
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return f, nil
	case "":
		return OutputFormatTable, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s (use table, json or yaml)", s)
	}
}

// PrinterOptions controls rendering.
type PrinterOptions struct {
	Format OutputFormat
	Quiet  bool
	// NoColor disables ANSI styling in tables.
	NoColor bool
}

// Printer writes results in the configured format.
type Printer struct {
	out     io.Writer
	options PrinterOptions
}

// NewPrinter creates a printer writing to out, or stdout when out is nil.
func NewPrinter(options PrinterOptions, out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	if options.Format == "" {
		options.Format = OutputFormatTable
	}
	return &Printer{out: out, options: options}
}

// Format returns the configured output format.
func (p *Printer) Format() OutputFormat { return p.options.Format }

func (p *Printer) color(c text.Color, s string) string {
	if p.options.NoColor {
		return s
	}
	return c.Sprint(s)
}

// Message prints an informational line unless quiet.
func (p *Printer) Message(format string, args ...any) {
	if p.options.Quiet {
		return
	}
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Print renders any value. Tables are derived from the value's JSON form.
func (p *Printer) Print(v any) error {
	switch p.options.Format {
	case OutputFormatJSON:
		return p.printJSON(v)
	case OutputFormatYAML:
		return p.printYAML(v)
	case OutputFormatTable:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		return p.outputTable(data)
	default:
		return fmt.Errorf("unsupported output format: %s", p.options.Format)
	}
}

func (p *Printer) printJSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML goes through JSON first so json tags and raw messages are honored.
func (p *Printer) printYAML(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	yamlData, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Errorf("failed to convert to YAML: %w", err)
	}
	_, err = p.out.Write(yamlData)
	return err
}

// outputTable formats JSON data as a table
func (p *Printer) outputTable(jsonData []byte) error {
	var data any
	if err := json.Unmarshal(jsonData, &data); err != nil {
		fmt.Fprintln(p.out, string(jsonData))
		return nil
	}

	switch d := data.(type) {
	case map[string]any:
		return p.formatKeyValueTable(d)
	case []any:
		return p.formatTableFromArray(d)
	case nil:
		p.Message("No results")
		return nil
	default:
		fmt.Fprintln(p.out, d)
		return nil
	}
}

func (p *Printer) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleRounded)
	if p.options.NoColor {
		t.SetStyle(table.StyleLight)
	}
	return t
}

func (p *Printer) header(cols ...string) table.Row {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = p.color(text.FgHiCyan, strings.ToUpper(c))
	}
	return row
}

// formatTableFromArray creates a table from an array of objects
func (p *Printer) formatTableFromArray(data []any) error {
	if len(data) == 0 {
		fmt.Fprintln(p.out, p.color(text.FgYellow, "No items found"))
		return nil
	}

	first, ok := data[0].(map[string]any)
	if !ok {
		for _, item := range data {
			fmt.Fprintln(p.out, item)
		}
		return nil
	}

	columns := sortedKeys(first)
	if len(columns) > 6 {
		columns = columns[:6]
	}

	t := p.newTable()
	t.AppendHeader(p.header(columns...))
	for _, item := range data {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := make(table.Row, len(columns))
		for i, col := range columns {
			row[i] = p.formatCellValue(col, obj[col])
		}
		t.AppendRow(row)
	}
	t.Render()
	return nil
}

// formatKeyValueTable formats an object as key-value pairs
func (p *Printer) formatKeyValueTable(data map[string]any) error {
	t := p.newTable()
	t.AppendHeader(p.header("property", "value"))
	for _, key := range sortedKeys(data) {
		t.AppendRow(table.Row{p.color(text.FgYellow, key), p.formatCellValue(key, data[key])})
	}
	t.Render()
	return nil
}

// formatCellValue formats individual cell values with appropriate styling
func (p *Printer) formatCellValue(column string, value any) any {
	if value == nil {
		return p.color(text.FgHiBlack, "-")
	}

	switch v := value.(type) {
	case map[string]any, []any:
		data, _ := json.Marshal(v)
		return truncate(string(data), 40)
	}

	s := fmt.Sprintf("%v", value)
	switch strings.ToLower(column) {
	case "status":
		return p.formatStatus(s)
	case "description", "lasterror", "error":
		return truncate(s, 50)
	default:
		return truncate(s, 40)
	}
}

// formatStatus colors a supervisor status.
func (p *Printer) formatStatus(status string) string {
	switch strings.ToLower(status) {
	case "running":
		return p.color(text.FgGreen, status)
	case "starting":
		return p.color(text.FgYellow, status)
	case "error":
		return p.color(text.FgRed, status)
	case "stopped":
		return p.color(text.FgHiBlack, status)
	default:
		return status
	}
}

// PrintServers renders the server list.
func (p *Printer) PrintServers(servers []registry.ServerStatus) error {
	if p.options.Format != OutputFormatTable {
		return p.Print(servers)
	}
	if len(servers) == 0 {
		p.Message("No servers installed. Add one with 'toolhost add'.")
		return nil
	}

	t := p.newTable()
	t.AppendHeader(p.header("id", "status", "pid", "auto", "command", "last error"))
	for _, s := range servers {
		pid := "-"
		if s.PID > 0 {
			pid = fmt.Sprintf("%d", s.PID)
		}
		auto := ""
		if s.AutoStart {
			auto = "yes"
		}
		cmdline := strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
		t.AppendRow(table.Row{s.ID, p.formatStatus(s.Status), pid, auto, truncate(cmdline, 40), truncate(s.LastError, 50)})
	}
	t.Render()
	return nil
}

// PrintTools renders a tool list.
func (p *Printer) PrintTools(tools []mcp.Tool) error {
	if p.options.Format != OutputFormatTable {
		return p.Print(tools)
	}
	if len(tools) == 0 {
		p.Message("No tools")
		return nil
	}

	t := p.newTable()
	t.AppendHeader(p.header("name", "arguments", "description"))
	for _, tool := range tools {
		args := make([]string, 0, len(tool.InputSchema.Properties))
		for name := range tool.InputSchema.Properties {
			if contains(tool.InputSchema.Required, name) {
				name += "*"
			}
			args = append(args, name)
		}
		sort.Strings(args)
		t.AppendRow(table.Row{tool.Name, strings.Join(args, ", "), truncate(tool.Description, 60)})
	}
	t.Render()
	return nil
}

// PrintLogs renders retained diagnostic lines.
func (p *Printer) PrintLogs(lines []reporting.LogLine) error {
	if p.options.Format != OutputFormatTable {
		return p.Print(lines)
	}
	for _, l := range lines {
		ts := p.color(text.FgHiBlack, l.Timestamp.Format("15:04:05.000"))
		stream := string(l.Stream)
		if l.Stream == reporting.StreamStderr {
			stream = p.color(text.FgYellow, stream)
		}
		fmt.Fprintf(p.out, "%s %s %s\n", ts, stream, l.Line)
	}
	return nil
}

// PrintCallResult renders a tool result. A result flagged as an error is
// printed and returned as an error.
func (p *Printer) PrintCallResult(result *mcp.CallToolResult) error {
	if p.options.Format != OutputFormatTable {
		if err := p.Print(result); err != nil {
			return err
		}
		if result.IsError {
			return fmt.Errorf("tool returned an error")
		}
		return nil
	}

	texts := ContentText(result.Content)
	if result.IsError {
		msg := strings.Join(texts, "\n")
		fmt.Fprintf(p.out, "%s %s\n", p.color(text.FgRed, "Error:"), msg)
		return fmt.Errorf("%s", msg)
	}
	if len(texts) == 0 {
		p.Message("No results")
		return nil
	}
	for _, s := range texts {
		// Structured text is shown as a table when possible.
		if trimmed := strings.TrimSpace(s); strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			if err := p.outputTable([]byte(trimmed)); err == nil {
				continue
			}
		}
		fmt.Fprintln(p.out, s)
	}
	return nil
}

// ContentText extracts the printable parts of tool result content.
func ContentText(content []mcp.Content) []string {
	var out []string
	for _, c := range content {
		if tc, ok := mcp.AsTextContent(c); ok {
			out = append(out, tc.Text)
		} else if ic, ok := mcp.AsImageContent(c); ok {
			out = append(out, fmt.Sprintf("[Image: MIME type %s, %d bytes]", ic.MIMEType, len(ic.Data)))
		} else if ac, ok := mcp.AsAudioContent(c); ok {
			out = append(out, fmt.Sprintf("[Audio: MIME type %s, %d bytes]", ac.MIMEType, len(ac.Data)))
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
