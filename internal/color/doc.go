// Package color decides whether and how toolhost colors its output.
//
// Tables printed by the CLI honor NO_COLOR and TERM=dumb through Disabled.
// The dashboard's adaptive palette follows the terminal background, which
// can be forced with Initialize when detection gets it wrong:
//
//	color.Initialize(true) // dark palette
package color
