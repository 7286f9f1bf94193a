package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// GenerateWithRetry calls gen up to retries+1 times, backing off linearly
// between attempts. A cancelled context stops the loop early.
func GenerateWithRetry(ctx context.Context, gen Generator, req Request, retries int, delay time.Duration) (string, error) {
	var (
		response string
		err      error
	)
	for attempt := 0; attempt <= retries; attempt++ {
		response, err = gen.Generate(ctx, req)
		if err == nil {
			return response, nil
		}
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay * time.Duration(attempt+1)):
		}
	}
	return "", fmt.Errorf("generation failed after %d attempts: %w", retries+1, err)
}

// ClipText shortens s to at most max runes so prompts stay bounded.
func ClipText(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
