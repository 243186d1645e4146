package provision

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Report holds the connection details printed after a successful run.
type Report struct {
	Name     string
	Address  string
	Port     int
	Username string
	Password string
}

// Render returns the human-readable connection banner.
func (r *Report) Render() string {
	header := color.New(color.Bold, color.FgHiGreen)
	label := color.New(color.Bold)
	faint := color.New(color.Faint)

	var sb strings.Builder
	rule := faint.Sprint(strings.Repeat("─", 48))

	sb.WriteString(rule + "\n")
	sb.WriteString(header.Sprintf("Instance %s is ready for remote desktop", r.Name) + "\n")
	sb.WriteString(rule + "\n")
	fmt.Fprintf(&sb, "  %s %s\n", label.Sprint("Host:    "), r.Address)
	fmt.Fprintf(&sb, "  %s %d\n", label.Sprint("Port:    "), r.Port)
	fmt.Fprintf(&sb, "  %s %s\n", label.Sprint("Username:"), r.Username)
	fmt.Fprintf(&sb, "  %s %s\n", label.Sprint("Password:"), r.Password)
	sb.WriteString(rule + "\n")
	sb.WriteString("Connect with:\n")
	fmt.Fprintf(&sb, "  Windows:  mstsc /v:%s\n", r.Address)
	fmt.Fprintf(&sb, "  macOS:    open rdp://%s@%s\n", r.Username, r.Address)
	fmt.Fprintf(&sb, "  Linux:    xfreerdp /u:%s /p:'%s' /v:%s:%d\n", r.Username, r.Password, r.Address, r.Port)
	sb.WriteString(rule + "\n")

	return sb.String()
}
