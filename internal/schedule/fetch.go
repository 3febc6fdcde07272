package schedule

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

// maxFetchBytes bounds how much of a response body is ever read into memory,
// independent of the digest's configured MaxBodyBytes (which only bounds how
// much is kept for the prompt). The content hash is computed over everything
// read up to this ceiling, before the prompt-facing truncation happens.
const maxFetchBytes = 10 << 20 // 10MiB

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// FetchResult is one source's outcome for a single digest run.
type FetchResult struct {
	URL        string
	Body       string // truncated to MaxBodyBytes, HTML tags stripped
	Hash       string // sha256 of the full body, before truncation
	Changed    bool
	HTTPStatus int
	Err        error
}

// fetchSources retrieves every source concurrently, hashes each full body
// before any truncation, and reports which ones changed relative to prior.
// prior may be nil or missing entries; a source with no prior state is
// always reported as changed.
func fetchSources(ctx context.Context, client *http.Client, sources []string, userAgent string, timeout time.Duration, maxBodyBytes int64, prior map[string]*SourceState) []FetchResult {
	results := make([]FetchResult, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			results[i] = fetchOne(ctx, client, url, userAgent, timeout, maxBodyBytes, prior)
		}(i, src)
	}
	wg.Wait()
	return results
}

func fetchOne(ctx context.Context, client *http.Client, url, userAgent string, timeout time.Duration, maxBodyBytes int64, prior map[string]*SourceState) FetchResult {
	res := FetchResult{URL: url}

	reqCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		res.Err = fmt.Errorf("build request: %w", err)
		return res
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	res.HTTPStatus = resp.StatusCode

	full, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		res.Err = fmt.Errorf("read body: %w", err)
		return res
	}
	if resp.StatusCode >= 400 {
		res.Err = fmt.Errorf("http status %d", resp.StatusCode)
	}

	sum := sha256.Sum256(full)
	res.Hash = hex.EncodeToString(sum[:])

	var priorHash string
	if prior != nil {
		if st, ok := prior[url]; ok {
			priorHash = st.LastContentHash
		}
	}
	res.Changed = priorHash == "" || priorHash != res.Hash

	body := stripHTML(string(full))
	if maxBodyBytes > 0 && int64(len(body)) > maxBodyBytes {
		body = body[:maxBodyBytes]
	}
	res.Body = body
	return res
}

// stripHTML removes HTML tags from body, collapsing surrounding whitespace.
func stripHTML(body string) string {
	stripped := htmlTagPattern.ReplaceAllString(body, " ")
	return strings.Join(strings.Fields(stripped), " ")
}

// nextSourceStates folds a round of fetch results into updated per-source
// state, preserving the prior entry for any source whose fetch failed to
// produce new content (so a transient fetch error doesn't erase the last
// known-good hash).
func nextSourceStates(prior map[string]*SourceState, results []FetchResult, now time.Time) map[string]*SourceState {
	next := make(map[string]*SourceState, len(results))
	for _, r := range results {
		st := &SourceState{URL: r.URL, LastFetchedAt: now, LastHTTPStatus: r.HTTPStatus}
		if r.Err != nil {
			st.LastError = r.Err.Error()
			if prior != nil {
				if p, ok := prior[r.URL]; ok {
					st.LastContentHash = p.LastContentHash
				}
			}
		} else {
			st.LastContentHash = r.Hash
		}
		next[r.URL] = st
	}
	return next
}

// buildDigestPrompt renders a digest job's prompt template. Templates
// containing "{{...}}" placeholders are substituted in place; templates
// without any placeholder get the fetched content appended as a legacy
// suffix so existing plain-text prompts keep working untouched.
func buildDigestPrompt(tmpl, scheduleName, timezone string, now time.Time, results []FetchResult, mode DigestMode) string {
	included := results
	if mode == DigestModeChangesOnly {
		included = make([]FetchResult, 0, len(results))
		for _, r := range results {
			if r.Changed && r.Err == nil {
				included = append(included, r)
			}
		}
	}

	sourcesList := make([]string, 0, len(results))
	for _, r := range results {
		sourcesList = append(sourcesList, r.URL)
	}
	changedList := make([]string, 0, len(results))
	for _, r := range results {
		if r.Changed && r.Err == nil {
			changedList = append(changedList, r.URL)
		}
	}

	var content strings.Builder
	for _, r := range included {
		fmt.Fprintf(&content, "## %s\n", r.URL)
		if r.Err != nil {
			fmt.Fprintf(&content, "(fetch error: %s)\n\n", r.Err)
			continue
		}
		content.WriteString(r.Body)
		content.WriteString("\n\n")
	}

	if !strings.Contains(tmpl, "{{") {
		var suffix strings.Builder
		suffix.WriteString(tmpl)
		if suffix.Len() > 0 {
			suffix.WriteString("\n\n")
		}
		suffix.WriteString(content.String())
		return suffix.String()
	}

	replacer := strings.NewReplacer(
		"{{sources}}", strings.Join(sourcesList, ", "),
		"{{changed_sources}}", strings.Join(changedList, ", "),
		"{{date}}", now.Format("2006-01-02"),
		"{{time}}", now.Format("15:04:05"),
		"{{content}}", content.String(),
		"{{schedule_name}}", scheduleName,
		"{{timezone}}", timezone,
	)
	return replacer.Replace(tmpl)
}

// errAllSourcesFailed is returned by buildDigestPrompt's caller when every
// configured source failed to fetch, so the scheduler can treat the run as
// a failure rather than sending the model an empty digest.
var errAllSourcesFailed = errors.New("all digest sources failed to fetch")
