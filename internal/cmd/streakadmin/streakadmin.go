// Package streakadmin implements the operator CLI for the streak service:
// ad-hoc projection computes, replays, verification, and data seeding.
package streakadmin

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/morningpages/streakd/internal/services/streak/app"
	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
	"github.com/morningpages/streakd/internal/services/streak/domain/event"
	"github.com/morningpages/streakd/internal/services/streak/storage"
	"github.com/morningpages/streakd/internal/services/streak/storage/sqlite"
)

// Config holds streak-admin command configuration.
type Config struct {
	DBPath string `env:"STREAKD_DB_PATH" envDefault:"data/streak.db"`

	UID      string
	UIDs     string
	Explain  bool
	Verify   bool
	JSON     bool
	DryRun   bool
	UntilSeq uint64

	HolidayYear int
	Holidays    string

	SetTimezone string
	AddPost     bool
	PostID      string
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string, env func(string) string) (Config, error) {
	cfg := Config{DBPath: "data/streak.db"}
	if env != nil {
		if path := strings.TrimSpace(env("STREAKD_DB_PATH")); path != "" {
			cfg.DBPath = path
		}
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the streak SQLite database")
	fs.StringVar(&cfg.UID, "uid", "", "user to operate on")
	fs.StringVar(&cfg.UIDs, "uids", "", "comma-separated users for a batch compute")
	fs.BoolVar(&cfg.Explain, "explain", false, "print the stepwise replay instead of the projection")
	fs.BoolVar(&cfg.Verify, "verify", false, "check the incremental projection against a full replay")
	fs.BoolVar(&cfg.JSON, "json", false, "emit JSON output")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "compute without writing the projection cache")
	fs.Uint64Var(&cfg.UntilSeq, "until-seq", 0, "stop an -explain replay after this journal sequence")
	fs.IntVar(&cfg.HolidayYear, "holiday-year", 0, "calendar year to seed holidays for")
	fs.StringVar(&cfg.Holidays, "holidays", "", "holidays as DATE=NAME pairs separated by commas")
	fs.StringVar(&cfg.SetTimezone, "set-timezone", "", "record a timezone change for -uid")
	fs.BoolVar(&cfg.AddPost, "add-post", false, "append a PostCreated event for -uid")
	fs.StringVar(&cfg.PostID, "post-id", "", "post id for -add-post (generated when empty)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the streak-admin command.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var opts []app.Option
	if cfg.DryRun {
		opts = append(opts, app.WithoutCacheWrites())
	}
	svc := app.NewService(store, opts...)
	defer svc.Flush()

	switch {
	case cfg.HolidayYear != 0:
		return seedHolidays(ctx, store, cfg, out)
	case cfg.SetTimezone != "":
		return recordTimezoneChange(ctx, store, svc, cfg, out)
	case cfg.AddPost:
		return recordPost(ctx, svc, cfg, out)
	case cfg.UIDs != "":
		return computeBatch(ctx, svc, cfg, out)
	case cfg.Explain:
		return explainUser(ctx, svc, cfg, out)
	case cfg.Verify:
		return verifyUser(ctx, svc, cfg, out)
	case cfg.UID != "":
		return computeUser(ctx, svc, cfg, out)
	default:
		return errors.New("nothing to do: pass -uid, -uids, or a seeding flag")
	}
}

func computeUser(ctx context.Context, svc *app.Service, cfg Config, out io.Writer) error {
	p, err := svc.ComputeProjection(ctx, cfg.UID)
	if err != nil {
		return err
	}
	if cfg.JSON {
		return printJSON(out, p)
	}
	fmt.Fprintf(out, "user %s: status=%s streak=%d longest=%d appliedSeq=%d\n",
		cfg.UID, p.Status.Type, p.CurrentStreak, p.LongestStreak, p.AppliedSeq)
	if !p.LastContributionDate.IsZero() {
		fmt.Fprintf(out, "  last contribution: %s\n", p.LastContributionDate)
	}
	return nil
}

func computeBatch(ctx context.Context, svc *app.Service, cfg Config, out io.Writer) error {
	var ids []string
	for _, raw := range strings.Split(cfg.UIDs, ",") {
		if id := strings.TrimSpace(raw); id != "" {
			ids = append(ids, id)
		}
	}
	// An empty id list falls through to every known user.
	items, err := svc.ComputeBatch(ctx, ids)
	if err != nil {
		return err
	}
	if cfg.JSON {
		type batchOut struct {
			UID    string `json:"uid"`
			Status string `json:"status,omitempty"`
			Streak int    `json:"currentStreak,omitempty"`
			Error  string `json:"error,omitempty"`
		}
		outs := make([]batchOut, 0, len(items))
		for _, item := range items {
			entry := batchOut{UID: item.UserID}
			if item.Err != nil {
				entry.Error = item.Err.Error()
			} else {
				entry.Status = string(item.Projection.Status.Type)
				entry.Streak = item.Projection.CurrentStreak
			}
			outs = append(outs, entry)
		}
		return printJSON(out, outs)
	}

	for _, item := range items {
		if item.Err != nil {
			fmt.Fprintf(out, "user %s: ERROR %v\n", item.UserID, item.Err)
			continue
		}
		fmt.Fprintf(out, "user %s: status=%s streak=%d\n",
			item.UserID, item.Projection.Status.Type, item.Projection.CurrentStreak)
	}
	return nil
}

func explainUser(ctx context.Context, svc *app.Service, cfg Config, out io.Writer) error {
	if cfg.UID == "" {
		return errors.New("-explain requires -uid")
	}
	report, err := svc.ExplainProjection(ctx, cfg.UID, app.ExplainOptions{UntilSeq: cfg.UntilSeq})
	if err != nil {
		return err
	}
	if cfg.JSON {
		return printJSON(out, report)
	}

	fmt.Fprintf(out, "user %s (%s): %d events, %d virtual closures, %d status transitions\n",
		report.UserID, report.Timezone, report.Summary.TotalEvents,
		report.Summary.VirtualClosures, report.Summary.StatusTransitions)
	for _, step := range report.Steps {
		marker := " "
		if step.Event.Virtual {
			marker = "~"
		}
		fmt.Fprintf(out, "%s %-16s %s", marker, step.Event.Type, step.Event.DayKey)
		if len(step.Changes) == 0 {
			fmt.Fprintln(out)
			continue
		}
		fmt.Fprintln(out)
		for _, change := range step.Changes {
			fmt.Fprintf(out, "    %s: %s -> %s (%s)\n", change.Field, change.Before, change.After, change.Reason)
		}
	}
	fmt.Fprintf(out, "final: status=%s streak=%d appliedSeq=%d\n",
		report.Projection.Status.Type, report.Projection.CurrentStreak, report.Projection.AppliedSeq)
	return nil
}

// verifyUser checks that the cached, incrementally folded projection agrees
// with a full replay of the journal.
func verifyUser(ctx context.Context, svc *app.Service, cfg Config, out io.Writer) error {
	if cfg.UID == "" {
		return errors.New("-verify requires -uid")
	}
	incremental, err := svc.ComputeProjection(ctx, cfg.UID)
	if err != nil {
		return err
	}
	report, err := svc.ExplainProjection(ctx, cfg.UID, app.ExplainOptions{})
	if err != nil {
		return err
	}
	full := report.Projection

	var mismatches []string
	if incremental.Status.Type != full.Status.Type {
		mismatches = append(mismatches, fmt.Sprintf("status %s != %s", incremental.Status.Type, full.Status.Type))
	}
	if incremental.CurrentStreak != full.CurrentStreak {
		mismatches = append(mismatches, fmt.Sprintf("currentStreak %d != %d", incremental.CurrentStreak, full.CurrentStreak))
	}
	if incremental.LongestStreak != full.LongestStreak {
		mismatches = append(mismatches, fmt.Sprintf("longestStreak %d != %d", incremental.LongestStreak, full.LongestStreak))
	}
	if incremental.AppliedSeq != full.AppliedSeq {
		mismatches = append(mismatches, fmt.Sprintf("appliedSeq %d != %d", incremental.AppliedSeq, full.AppliedSeq))
	}
	if incremental.LastContributionDate != full.LastContributionDate {
		mismatches = append(mismatches, fmt.Sprintf("lastContributionDate %s != %s",
			incremental.LastContributionDate, full.LastContributionDate))
	}

	if len(mismatches) > 0 {
		for _, m := range mismatches {
			fmt.Fprintf(out, "MISMATCH user %s: %s\n", cfg.UID, m)
		}
		return fmt.Errorf("projection for %s diverges from full replay", cfg.UID)
	}
	fmt.Fprintf(out, "user %s: projection verified against full replay (appliedSeq=%d)\n",
		cfg.UID, incremental.AppliedSeq)
	return nil
}

func seedHolidays(ctx context.Context, store storage.HolidayStore, cfg Config, out io.Writer) error {
	if strings.TrimSpace(cfg.Holidays) == "" {
		return errors.New("-holiday-year requires -holidays")
	}
	var holidays []calendar.Holiday
	for _, pair := range strings.Split(cfg.Holidays, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		date, name, _ := strings.Cut(pair, "=")
		day, err := calendar.ParseDayKey(strings.TrimSpace(date))
		if err != nil {
			return fmt.Errorf("holiday %q: %w", pair, err)
		}
		holidays = append(holidays, calendar.Holiday{Date: day, Name: strings.TrimSpace(name)})
	}
	if err := store.PutHolidayYear(ctx, cfg.HolidayYear, holidays); err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded %d holidays for %d\n", len(holidays), cfg.HolidayYear)
	return nil
}

func recordTimezoneChange(ctx context.Context, store storage.Store, svc *app.Service, cfg Config, out io.Writer) error {
	if cfg.UID == "" {
		return errors.New("-set-timezone requires -uid")
	}
	if _, err := time.LoadLocation(cfg.SetTimezone); err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.SetTimezone, err)
	}

	oldTimezone := ""
	profile, err := store.GetUserProfile(ctx, cfg.UID)
	if err == nil {
		oldTimezone = profile.Timezone
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if oldTimezone == cfg.SetTimezone {
		fmt.Fprintf(out, "user %s already in %s\n", cfg.UID, cfg.SetTimezone)
		return nil
	}

	payload, err := json.Marshal(event.TimezoneChangedPayload{
		OldTimezone: oldTimezone,
		NewTimezone: cfg.SetTimezone,
	})
	if err != nil {
		return err
	}
	stored, err := svc.RecordEvent(ctx, event.Event{
		UserID:  cfg.UID,
		Type:    event.TypeTimezoneChanged,
		Payload: payload,
	})
	if err != nil {
		return err
	}

	profile.UserID = cfg.UID
	profile.Timezone = cfg.SetTimezone
	if err := store.PutUserProfile(ctx, profile); err != nil {
		return err
	}
	fmt.Fprintf(out, "user %s timezone set to %s (event seq %d)\n", cfg.UID, cfg.SetTimezone, stored.Seq)
	return nil
}

func recordPost(ctx context.Context, svc *app.Service, cfg Config, out io.Writer) error {
	if cfg.UID == "" {
		return errors.New("-add-post requires -uid")
	}
	postID := strings.TrimSpace(cfg.PostID)
	if postID == "" {
		postID = uuid.NewString()
	}
	payload, err := json.Marshal(event.PostCreatedPayload{PostID: postID})
	if err != nil {
		return err
	}
	stored, err := svc.RecordEvent(ctx, event.Event{
		UserID:  cfg.UID,
		Type:    event.TypePostCreated,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "user %s post recorded on %s (event seq %d)\n", cfg.UID, stored.DayKey, stored.Seq)
	return nil
}

func printJSON(out io.Writer, payload any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
