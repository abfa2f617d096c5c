package reliability

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"
)

func TestSafeBatchWriteRetriesResidualSubsetOnly(t *testing.T) {
	var attempts [][]string
	w := BatchWriterFunc(func(ctx context.Context, ids []string) ([]string, error) {
		attempts = append(attempts, append([]string(nil), ids...))
		// First attempt leaves two unprocessed, second leaves one, third clears.
		switch len(attempts) {
		case 1:
			return []string{"b", "c"}, errors.New("partial failure")
		case 2:
			return []string{"c"}, errors.New("partial failure")
		default:
			return nil, nil
		}
	})

	remaining, err := SafeBatchWrite(context.Background(), w, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("SafeBatchWrite() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("remaining = %v, want none", remaining)
	}

	want := [][]string{{"a", "b", "c"}, {"b", "c"}, {"c"}}
	if !reflect.DeepEqual(attempts, want) {
		t.Errorf("attempts = %v, want %v", attempts, want)
	}
}

func TestSafeBatchWriteStopsAfterThreeAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("still failing")
	w := BatchWriterFunc(func(ctx context.Context, ids []string) ([]string, error) {
		calls++
		return ids, wantErr
	})

	remaining, err := SafeBatchWrite(context.Background(), w, []string{"a", "b"})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
	// Residual items come back to the caller for next-tick reconciliation.
	if !reflect.DeepEqual(remaining, []string{"a", "b"}) {
		t.Errorf("remaining = %v, want [a b]", remaining)
	}
}

func TestSafeBatchWriteEmptyInput(t *testing.T) {
	calls := 0
	w := BatchWriterFunc(func(ctx context.Context, ids []string) ([]string, error) {
		calls++
		return nil, nil
	})

	remaining, err := SafeBatchWrite(context.Background(), w, nil)
	if err != nil || len(remaining) != 0 {
		t.Errorf("SafeBatchWrite(nil) = %v, %v, want none, nil", remaining, err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

type fakeProber struct {
	depth int64
	err   error
}

func (f fakeProber) ApproxDepth(ctx context.Context) (int64, error) {
	return f.depth, f.err
}

func TestGate(t *testing.T) {
	tests := []struct {
		name   string
		prober fakeProber
		want   bool
	}{
		{"under threshold", fakeProber{depth: 100}, true},
		{"at threshold", fakeProber{depth: 2000}, true},
		{"over threshold", fakeProber{depth: 2001}, false},
		{"probe error fails open", fakeProber{err: errors.New("redis down")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.prober, 2000, slog.Default())
			if got := g.Allow(context.Background()); got != tt.want {
				t.Errorf("Allow() = %v, want %v", got, tt.want)
			}
		})
	}
}
