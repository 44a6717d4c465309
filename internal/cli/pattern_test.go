package cli

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chacrab/chacrab/pkg/model"
)

func itemWithID(id uuid.UUID) model.VaultItem {
	return model.VaultItem{ID: id, Kind: model.KindNote, Title: "t", UpdatedAt: time.Now()}
}

func itemWithTitle(id uuid.UUID, title string) model.VaultItem {
	return model.VaultItem{ID: id, Kind: model.KindNote, Title: title, UpdatedAt: time.Now()}
}

func TestResolveIDFullMatch(t *testing.T) {
	id := uuid.New()
	other := uuid.New()
	items := []model.VaultItem{itemWithID(id), itemWithID(other)}

	got, err := ResolveID(items, id.String())
	if err != nil {
		t.Fatalf("ResolveID() error = %v", err)
	}
	if got != id {
		t.Fatalf("ResolveID() = %s, want %s", got, id)
	}
}

func TestResolveIDFullMatchMissing(t *testing.T) {
	items := []model.VaultItem{itemWithID(uuid.New())}
	missing := uuid.New()

	if _, err := ResolveID(items, missing.String()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ResolveID() error = %v, want ErrNotFound", err)
	}
}

func TestResolveIDUnambiguousPrefix(t *testing.T) {
	id := uuid.New()
	items := []model.VaultItem{itemWithID(id), itemWithID(uuid.New())}

	prefix := ShortID(id)
	got, err := ResolveID(items, prefix)
	if err != nil {
		t.Fatalf("ResolveID() error = %v", err)
	}
	if got != id {
		t.Fatalf("ResolveID() = %s, want %s", got, id)
	}
}

func TestResolveIDPrefixIsCaseInsensitive(t *testing.T) {
	id := uuid.New()
	items := []model.VaultItem{itemWithID(id)}

	upper := strings.ToUpper(ShortID(id))
	if _, err := ResolveID(items, upper); err != nil {
		t.Fatalf("ResolveID() with uppercase prefix error = %v", err)
	}
}

func TestResolveIDAmbiguousPrefix(t *testing.T) {
	// Two ids engineered to share the "00000000" prefix.
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	items := []model.VaultItem{itemWithID(a), itemWithID(b)}

	if _, err := ResolveID(items, "00000000"); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("ResolveID() error = %v, want ErrAmbiguous", err)
	}
}

func TestResolveIDNoMatch(t *testing.T) {
	items := []model.VaultItem{itemWithID(uuid.New())}

	if _, err := ResolveID(items, "zzzzzzzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ResolveID() error = %v, want ErrNotFound", err)
	}
}

func TestResolveLabelMatch(t *testing.T) {
	id := uuid.New()
	items := []model.VaultItem{itemWithTitle(id, "GitHub"), itemWithTitle(uuid.New(), "GitLab")}

	got, err := ResolveLabel(items, "github")
	if err != nil {
		t.Fatalf("ResolveLabel() error = %v", err)
	}
	if got != id {
		t.Fatalf("ResolveLabel() = %s, want %s", got, id)
	}
}

func TestResolveLabelNoMatch(t *testing.T) {
	items := []model.VaultItem{itemWithTitle(uuid.New(), "GitHub")}
	if _, err := ResolveLabel(items, "bitbucket"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ResolveLabel() error = %v, want ErrNotFound", err)
	}
}

func TestResolveLabelAmbiguous(t *testing.T) {
	items := []model.VaultItem{itemWithTitle(uuid.New(), "dup"), itemWithTitle(uuid.New(), "dup")}
	if _, err := ResolveLabel(items, "dup"); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("ResolveLabel() error = %v, want ErrAmbiguous", err)
	}
}

func TestShortIDLength(t *testing.T) {
	id := uuid.New()
	short := ShortID(id)
	if len(short) != 8 {
		t.Fatalf("ShortID() length = %d, want 8", len(short))
	}
}
