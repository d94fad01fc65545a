package checkpoint

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Line prefixes of the text checkpoint artifact.
const (
	prefixCurrentURL = "Current URL: "
	prefixNextURL    = "Next URL: "
	prefixLastPage   = "Last successfully fetched page: "

	// NoneSentinel marks an exhausted stream (no next link).
	NoneSentinel = "None"
)

// ErrMalformed indicates a stored checkpoint could not be parsed.
var ErrMalformed = errors.New("malformed checkpoint")

// Checkpoint is the durable pagination progress of one stream.
type Checkpoint struct {
	// CurrentURL is the URL last requested.
	CurrentURL string `json:"current_url"`

	// NextURL is the URL to request on resume. Empty when the stream is exhausted.
	NextURL string `json:"next_url"`

	// LastPage is the highest page number successfully processed.
	LastPage int `json:"last_page"`
}

// ErrInvalidPage is returned when saving a checkpoint whose LastPage is below 1.
var ErrInvalidPage = errors.New("checkpoint last page must be >= 1")

// Default returns the checkpoint used when nothing usable is stored:
// start from page 1 with no prior URL.
func Default() Checkpoint {
	return Checkpoint{LastPage: 1}
}

// HasNext reports whether the checkpoint carries a resume URL.
func (c Checkpoint) HasNext() bool {
	return c.NextURL != ""
}

// Store persists checkpoints, one per stream.
//
// Load never fails: a missing or unreadable checkpoint yields Default().
// Save must leave either the previous or the new checkpoint readable if the
// process dies mid-write. Save rejects LastPage < 1 with ErrInvalidPage, so
// everything saved loads back unchanged.
type Store interface {
	Load(ctx context.Context, stream string) Checkpoint
	Save(ctx context.Context, stream string, cp Checkpoint) error
	Delete(ctx context.Context, stream string) error
}

// MarshalText renders the three-line human-readable form.
func (c Checkpoint) MarshalText() ([]byte, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	next := c.NextURL
	if next == "" {
		next = NoneSentinel
	}
	var b strings.Builder
	b.WriteString(prefixCurrentURL + c.CurrentURL + "\n")
	b.WriteString(prefixNextURL + next + "\n")
	b.WriteString(prefixLastPage + strconv.Itoa(c.LastPage) + "\n")
	return []byte(b.String()), nil
}

// UnmarshalText parses the three-line form. All three lines must be present.
func (c *Checkpoint) UnmarshalText(data []byte) error {
	var (
		cp                       Checkpoint
		haveCur, haveNext, haveP bool
	)

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.HasPrefix(line, prefixCurrentURL):
			cp.CurrentURL = strings.TrimSpace(strings.TrimPrefix(line, prefixCurrentURL))
			haveCur = true
		case strings.HasPrefix(line, prefixNextURL):
			next := strings.TrimSpace(strings.TrimPrefix(line, prefixNextURL))
			if next != NoneSentinel {
				cp.NextURL = next
			}
			haveNext = true
		case strings.HasPrefix(line, prefixLastPage):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, prefixLastPage)))
			if err != nil {
				return fmt.Errorf("%w: last page: %v", ErrMalformed, err)
			}
			cp.LastPage = n
			haveP = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if !haveCur || !haveNext || !haveP {
		return fmt.Errorf("%w: missing fields", ErrMalformed)
	}
	if cp.LastPage < 1 {
		return fmt.Errorf("%w: last page %d", ErrMalformed, cp.LastPage)
	}

	*c = cp
	return nil
}

func (c Checkpoint) validate() error {
	if c.LastPage < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidPage, c.LastPage)
	}
	return nil
}

// StreamID builds the identifier of an extraction stream. Author-scoped
// streams get their own checkpoint per author.
//
// Example:
//
//	StreamID("positions", "")  // "positions"
//	StreamID("search", "1213") // "search_author_1213"
func StreamID(endpoint, authorID string) string {
	id := sanitize(strings.Trim(endpoint, "/"))
	if authorID != "" {
		id += "_author_" + sanitize(authorID)
	}
	return id
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
