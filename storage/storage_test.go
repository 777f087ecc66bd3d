package storage_test

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/nim-companion/core"
	"github.com/becomeliminal/nim-companion/profile"
	"github.com/becomeliminal/nim-companion/storage"
)

func backends(t *testing.T) map[string]storage.Config {
	t.Helper()
	cfgs := map[string]storage.Config{
		"file":   {Driver: storage.DriverFile, Dir: t.TempDir()},
		"memory": {Driver: storage.DriverMemory},
	}
	if url := os.Getenv("TEST_REDIS_URL"); url != "" {
		cfgs["redis"] = storage.Config{Driver: storage.DriverRedis, RedisURL: url}
	}
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		cfgs["postgres"] = storage.Config{Driver: storage.DriverPostgres, DatabaseURL: url}
	}
	return cfgs
}

func TestBackends_RoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b, err := storage.Open(ctx, cfg)
			if err != nil {
				t.Fatalf("Failed to open %s backend: %v", name, err)
			}
			defer b.Close()

			userID := "user-" + uuid.NewString()

			p, err := b.LoadProfile(ctx, userID)
			if err != nil || p != nil {
				t.Fatalf("Unknown user should load (nil, nil), got %v, %v", p, err)
			}
			turns, err := b.LoadHistory(ctx, userID)
			if err != nil || turns == nil || len(turns) != 0 {
				t.Fatalf("Unknown user should load an empty history, got %v, %v", turns, err)
			}

			created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
			want := &profile.UserProfile{
				Name:              "Łucja",
				PersonalityTraits: []string{"curious"},
				Preferences:       map[string]string{"tea": "抹茶"},
				Goals:             []string{},
				ImportantDates:    map[string]string{},
				Facts:             []string{"plays go 🎲"},
				ConversationCount: 7,
				CreatedAt:         created,
				LastUpdated:       created,
			}
			if err := b.SaveProfile(ctx, userID, want); err != nil {
				t.Fatalf("SaveProfile: %v", err)
			}
			got, err := b.LoadProfile(ctx, userID)
			if err != nil {
				t.Fatalf("LoadProfile: %v", err)
			}
			if !got.CreatedAt.Equal(want.CreatedAt) {
				t.Errorf("CreatedAt mismatch: %v vs %v", got.CreatedAt, want.CreatedAt)
			}
			got.CreatedAt, got.LastUpdated = want.CreatedAt, want.LastUpdated
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Profile mismatch:\n got %+v\nwant %+v", got, want)
			}

			history := []core.Turn{
				core.NewUserTurn("おはよう"),
				core.NewAssistantTurn("Good morning!"),
				{Role: core.RoleAssistant, Content: "Still there?", Proactive: true},
			}
			if err := b.SaveHistory(ctx, userID, history); err != nil {
				t.Fatalf("SaveHistory: %v", err)
			}
			loaded, err := b.LoadHistory(ctx, userID)
			if err != nil {
				t.Fatalf("LoadHistory: %v", err)
			}
			if !reflect.DeepEqual(loaded, history) {
				t.Errorf("History mismatch:\n got %+v\nwant %+v", loaded, history)
			}

			if err := b.SaveHistory(ctx, userID, history[:1]); err != nil {
				t.Fatalf("SaveHistory overwrite: %v", err)
			}
			loaded, _ = b.LoadHistory(ctx, userID)
			if len(loaded) != 1 {
				t.Errorf("SaveHistory should overwrite, got %d turns", len(loaded))
			}
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := storage.Open(context.Background(), storage.Config{Driver: "cassandra"})
	if !errors.Is(err, storage.ErrUnknownDriver) {
		t.Errorf("Expected ErrUnknownDriver, got %v", err)
	}
}

func TestOpen_MissingURLs(t *testing.T) {
	for _, driver := range []string{storage.DriverRedis, storage.DriverPostgres} {
		if _, err := storage.Open(context.Background(), storage.Config{Driver: driver}); err == nil {
			t.Errorf("Expected %s without a URL to fail", driver)
		}
	}
}
