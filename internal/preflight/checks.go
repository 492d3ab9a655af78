package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"taskguard/internal/config"
	"taskguard/internal/transport"
)

// Requirement defines an external binary taskguard relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Requirements lists the binaries the configured transports need.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{Name: "sh", Command: "sh", Description: "Runs supervised and short commands"},
		{Name: "tail", Command: "tail", Description: "Required for 'taskguard tail'", Optional: true},
	}
	if cfg != nil && cfg.Remote.Transport == config.TransportSSH {
		reqs = append(reqs, Requirement{
			Name:        "ssh",
			Command:     cfg.Remote.SSHBinary,
			Description: "Required for remote hosts",
			Optional:    true,
		})
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements.
func CheckBinaries(requirements []Requirement) []Result {
	results := make([]Result, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		result := Result{Name: req.Name, Optional: req.Optional}
		switch path, err := exec.LookPath(cmd); {
		case cmd == "":
			result.Detail = "command not configured"
		case err != nil:
			result.Detail = fmt.Sprintf("binary %q not found (%s)", cmd, strings.ToLower(req.Description))
		default:
			result.Passed = true
			result.Detail = path
		}
		results = append(results, result)
	}
	return results
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFile verifies that path is a readable regular file.
func CheckFile(name, path string, optional bool) Result {
	result := Result{Name: name, Optional: optional}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		result.Detail = fmt.Sprintf("%s (error: %v)", path, err)
	case info.IsDir():
		result.Detail = fmt.Sprintf("%s (error: is a directory)", path)
	case unix.Access(path, unix.R_OK) != nil:
		result.Detail = fmt.Sprintf("%s (error: not readable)", path)
	default:
		result.Passed = true
		result.Detail = path
	}
	return result
}

// CheckNtfy polls the topic once to confirm the server answers.
func CheckNtfy(ctx context.Context, topic string) Result {
	const name = "ntfy"

	base := strings.TrimRight(strings.TrimSpace(topic), "/")
	if base == "" {
		return Result{Name: name, Detail: "topic not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/json?poll=1&since=none", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid topic url (%v)", err)}
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "reachable"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "topic requires authentication"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
}

// CheckHost runs a no-op command on host through the configured transport.
func CheckHost(ctx context.Context, opener transport.Opener, host string) Result {
	name := "Host " + host
	t, err := opener.Open(host)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer t.Close()

	start := time.Now()
	res, err := t.Run(ctx, "true")
	switch {
	case err != nil:
		return Result{Name: name, Detail: err.Error()}
	case res.ExitCode != 0:
		return Result{Name: name, Detail: fmt.Sprintf("no-op command exited %d", res.ExitCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%s)", time.Since(start).Round(time.Millisecond))}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "request timed out"
	}
	return err.Error()
}
