package vol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// externalTimeout bounds the external-oracle subprocess call (§4.3 method 4,
// §5 "subprocess calls have a 10s timeout").
const externalTimeout = 10 * time.Second

// externalOracleBinary is the subprocess invoked for out-of-process
// volatility estimation. It receives newline-separated log returns on
// stdin and must write a single JSON object {"sigma": <float>} to stdout.
var externalOracleBinary = "vol-oracle"

// externalEstimate calls the external volatility oracle with the log returns
// only; no Student-t starting solution is passed to it. On timeout,
// non-zero exit or unparseable output it returns KindTimeout so the caller
// falls back to GARCH-t (§4.3).
func externalEstimate(ctx context.Context, returns []float64) Result {
	cctx, cancel := context.WithTimeout(ctx, externalTimeout)
	defer cancel()

	var stdin bytes.Buffer
	for _, r := range returns {
		stdin.WriteString(strconv.FormatFloat(r, 'g', -1, 64))
		stdin.WriteByte('\n')
	}

	cmd := exec.CommandContext(cctx, externalOracleBinary)
	cmd.Stdin = &stdin
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		if cctx.Err() != nil {
			return Result{Kind: KindTimeout, Diagnostics: "external oracle timed out"}
		}
		return Result{Kind: KindTimeout, Diagnostics: fmt.Sprintf("external oracle exited non-zero: %v", err)}
	}

	var payload struct {
		Sigma float64 `json:"sigma"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &payload); err != nil {
		return Result{Kind: KindTimeout, Diagnostics: "external oracle produced unparseable output"}
	}
	if payload.Sigma <= 0 {
		return Result{Kind: KindPoorFit, Diagnostics: "external oracle returned non-positive sigma"}
	}
	return Result{Kind: KindOK, Estimate: Estimate{Sigma: payload.Sigma}}
}

// SetExternalOracleBinary overrides the subprocess path; a blank path
// leaves the current one in place.
func SetExternalOracleBinary(path string) {
	if strings.TrimSpace(path) != "" {
		externalOracleBinary = path
	}
}
