// Package protocol implements the wire format spoken with tool servers over
// their standard input and output pipes.
//
// Every message is a single line of UTF-8 JSON terminated by '\n'. Three
// message shapes exist:
//
//   - Request:      {"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}
//   - Response:     {"jsonrpc":"2.0","id":1,"result":{...}} or {"id":1,"error":{...}}
//   - Notification: {"jsonrpc":"2.0","method":"notifications/message","params":{...}}
//
// The Framer turns the raw byte stream read from a child process into
// complete messages. It is insensitive to how the operating system chunks
// the stream: a message split across reads and several messages delivered in
// a single read both decode the same way. A line that fails to decode is
// reported and skipped; it never stops the lines after it.
package protocol
