// Package logging provides structured, rotated file logging for the
// docsmcp build pipeline and query engine. When --debug is set,
// comprehensive logs are written to ~/.docsmcp/logs/ for troubleshooting;
// by default logging stays minimal and goes to stderr only.
package logging
