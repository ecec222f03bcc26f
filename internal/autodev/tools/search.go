package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"ragctx/internal/apperr"
	"ragctx/internal/autodev"
)

// CodeSearch shells out to ripgrep's newline-delimited JSON stream mode
// to locate the files relevant to a task's objective before codegen
// runs.
type CodeSearch struct {
	// MaxResults caps the number of matches returned (§4.4). Zero falls
	// back to the documented default of 50.
	MaxResults int
}

func (CodeSearch) Name() string { return "code_search" }

type rgMessage struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		LineNumber int `json:"line_number"`
		Lines      struct {
			Text string `json:"text"`
		} `json:"lines"`
	} `json:"data"`
}

// SearchHit is one ripgrep match surfaced to the codegen step.
type SearchHit struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (t CodeSearch) Run(ctx context.Context, ws *autodev.Workspace, input map[string]any) (map[string]any, error) {
	objective, _ := input["objective"].(string)
	pattern, _ := input["pattern"].(string)
	if pattern == "" {
		pattern = objective
	}
	if pattern == "" {
		return map[string]any{"hits": []SearchHit{}}, nil
	}

	maxResults := t.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}
	cmd := exec.CommandContext(ctx, "rg", "--json", "--max-count", strconv.Itoa(maxResults), pattern, ws.RepoDir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if cmd.ProcessState != nil && cmd.ProcessState.ExitCode() == 1 {
			// rg exits 1 when there are simply no matches.
			return map[string]any{"hits": []SearchHit{}}, nil
		}
		return nil, apperr.Exec(fmt.Sprintf("ripgrep search failed: %s", stderr.String()), err)
	}

	var hits []SearchHit
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg rgMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Type != "match" {
			continue
		}
		if len(hits) >= maxResults {
			break
		}
		hits = append(hits, SearchHit{
			Path: msg.Data.Path.Text,
			Line: msg.Data.LineNumber,
			Text: msg.Data.Lines.Text,
		})
	}
	return map[string]any{"hits": hits}, nil
}
