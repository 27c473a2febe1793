// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package extract

import (
	"bufio"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/samber/lo"

	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// Vocabulary is the closed set of tags user-supplied query tags are
// checked against. The zero value accepts every tag.
type Vocabulary struct {
	tags map[string]struct{}
}

// NewVocabulary builds a vocabulary from tags, normalising each.
func NewVocabulary(tags []string) *Vocabulary {
	return &Vocabulary{tags: lo.Keyify(NormalizeTags(tags, 0))}
}

// LoadVocabulary reads one tag per line from path. Blank lines and lines
// starting with '#' are skipped.
func LoadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodeConfigLoadReadFailure, "opening vocabulary", sigilerr.FieldPath(path))
	}
	defer func() { _ = f.Close() }()

	v, err := ReadVocabulary(f)
	if err != nil {
		return nil, sigilerr.With(err, sigilerr.FieldPath(path))
	}
	return v, nil
}

// ReadVocabulary reads one tag per line from r.
func ReadVocabulary(r io.Reader) (*Vocabulary, error) {
	var tags []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tags = append(tags, line)
	}
	if err := sc.Err(); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading vocabulary: %w", err)
	}
	return NewVocabulary(tags), nil
}

// Len returns the number of tags; 0 for an open vocabulary.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.tags)
}

// Open reports whether the vocabulary accepts every tag.
func (v *Vocabulary) Open() bool {
	return v.Len() == 0
}

// Contains reports whether tag is in the vocabulary.
func (v *Vocabulary) Contains(tag string) bool {
	if v.Open() {
		return true
	}
	_, ok := v.tags[tag]
	return ok
}

// Filter normalises tags and keeps those in the vocabulary.
func (v *Vocabulary) Filter(tags []string) []string {
	return lo.Filter(NormalizeTags(tags, 0), func(t string, _ int) bool { return v.Contains(t) })
}

// Tags returns the vocabulary in sorted order.
func (v *Vocabulary) Tags() []string {
	if v.Open() {
		return []string{}
	}
	out := lo.Keys(v.tags)
	slices.Sort(out)
	return out
}
