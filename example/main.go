package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/weakref/pkg/refcache"
	"github.com/dmitrymomot/weakref/pkg/typemeta"
)

type Contact struct {
	ID    int64
	Email string
	Name  string
}

type Invoice struct {
	Audit
	Contact *Contact
	Total   float64
}

type Audit struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Contact) Validate() error {
	if c.Email == "" {
		return fmt.Errorf("contact %d: empty email", c.ID)
	}
	return nil
}

func (i Invoice) Due() bool { return i.Total > 0 }

func main() {
	log := newLogger(slog.LevelDebug)
	ctx := typemeta.NewContext(context.Background(), typemeta.NewInspector(refcache.WithLogger(log)))

	if err := run(withPhase(ctx, "warmup"), log); err != nil {
		log.Error("example failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	inspector, ok := typemeta.FromContext(ctx)
	if !ok {
		return fmt.Errorf("no inspector in context")
	}

	descriptors := []*typemeta.Descriptor{
		typemeta.Of[Contact](),
		typemeta.Of[Invoice](),
		typemeta.Of[Audit](),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range descriptors {
		g.Go(func() error {
			fields, err := inspector.Fields(d)
			if err != nil {
				return err
			}
			names, err := inspector.MethodNames(d)
			if err != nil {
				return err
			}
			log.InfoContext(gctx, "type scanned",
				slog.String("type", d.String()),
				slog.Int("fields", len(fields)),
				slog.Any("methods", names),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fields, methods := inspector.Size()
	log.InfoContext(ctx, "metadata cached", slog.Int("fields", fields), slog.Int("methods", methods))

	// Dropping the descriptors releases the cached metadata.
	descriptors = nil
	ctx = withPhase(ctx, "release")
	purged := 0
	for range 10 {
		runtime.GC()
		purged += inspector.PurgeStale()
		if f, m := inspector.Size(); f == 0 && m == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	fields, methods = inspector.Size()
	log.InfoContext(ctx, "metadata released",
		slog.Int("purged", purged),
		slog.Int("fields", fields),
		slog.Int("methods", methods),
	)
	return nil
}
