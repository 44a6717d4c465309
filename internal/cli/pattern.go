// Package cli provides shared utilities for the chacrab command tree: the
// id-or-prefix resolution spec.md's repository contract requires of
// show/update/delete.
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/chacrab/chacrab/pkg/model"
)

// ErrNotFound indicates idOrPrefix matched zero items.
var ErrNotFound = errors.New("cli: no item matches id or prefix")

// ErrAmbiguous indicates idOrPrefix matched two or more items.
var ErrAmbiguous = errors.New("cli: id prefix matches more than one item")

// ResolveID matches idOrPrefix against items, accepting either a full
// UUID (hyphenated or not) or an unambiguous lowercase-hex prefix of one,
// per spec.md §4.3's `get(id_or_prefix)` contract. Matching is
// case-insensitive on the prefix; a full, syntactically valid UUID is
// accepted even if it happens not to be present in items, in which case
// it is still reported as ErrNotFound.
func ResolveID(items []model.VaultItem, idOrPrefix string) (uuid.UUID, error) {
	if full, err := uuid.Parse(idOrPrefix); err == nil {
		for _, item := range items {
			if item.ID == full {
				return full, nil
			}
		}
		return uuid.Nil, ErrNotFound
	}

	prefix := strings.ToLower(strings.ReplaceAll(idOrPrefix, "-", ""))
	if prefix == "" {
		return uuid.Nil, ErrNotFound
	}

	var matches []uuid.UUID
	for _, item := range items {
		compact := strings.ReplaceAll(item.ID.String(), "-", "")
		if strings.HasPrefix(compact, prefix) {
			matches = append(matches, item.ID)
		}
	}

	switch len(matches) {
	case 0:
		return uuid.Nil, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return uuid.Nil, fmt.Errorf("%w: %q matches %d items", ErrAmbiguous, idOrPrefix, len(matches))
	}
}

// ShortID returns the first 8 hex characters of id, the form spec.md §4.7
// mandates for conflict/replay reporting so plaintext titles never leak
// into sync output.
func ShortID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

// ResolveLabel matches label against each item's Title, case-insensitively,
// for the `update` subcommands' `--label` flag. Unlike ResolveID this never
// does partial matching: a title is a human-chosen string, not a hex
// identifier with a natural prefix relation.
func ResolveLabel(items []model.VaultItem, label string) (uuid.UUID, error) {
	var matches []uuid.UUID
	for _, item := range items {
		if strings.EqualFold(item.Title, label) {
			matches = append(matches, item.ID)
		}
	}
	switch len(matches) {
	case 0:
		return uuid.Nil, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return uuid.Nil, fmt.Errorf("%w: title %q matches %d items", ErrAmbiguous, label, len(matches))
	}
}
