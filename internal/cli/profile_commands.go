package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sort"
	"strings"

	"jobportal/internal/model"
	"jobportal/internal/profile"
)

func runProfile(args []string) error {
	if len(args) == 0 {
		printProfileUsage()
		return nil
	}
	switch args[0] {
	case "new":
		return runProfileNew(args[1:])
	case "set":
		return runProfileSet(args[1:])
	case "add":
		return runProfileAdd(args[1:])
	case "remove":
		return runProfileRemove(args[1:])
	case "save":
		return runProfileSave(args[1:])
	case "show":
		return runProfileShow(args[1:])
	case "discard":
		return runProfileDiscard(args[1:])
	case "help", "-h", "--help":
		printProfileUsage()
		return nil
	default:
		printProfileUsage()
		return fmt.Errorf("unknown profile subcommand %q", args[0])
	}
}

func runProfileNew(args []string) error {
	fs := flag.NewFlagSet("profile new", flag.ContinueOnError)
	dir := dirFlag(fs)
	kind := fs.String("kind", string(profile.ParentCandidate), "candidate|company")
	force := fs.Bool("force", false, "replace an existing draft")
	fields := fieldFlags{}
	fs.Var(fields, "field", "profile field key=value (repeatable)")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	parent, ok := profile.ParseParentKind(*kind)
	if !ok {
		return fmt.Errorf("--kind must be candidate or company")
	}

	store := profile.NewFileStore(*dir)
	lock, err := store.Lock()
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release()
	}()

	exists, err := store.Exists()
	if err != nil {
		return err
	}
	if exists && !*force {
		return fmt.Errorf("a profile draft already exists at %s (use --force to replace it or profile discard)", store.Path())
	}
	d := profile.NewDraft(parent)
	for k, v := range fields {
		if v != "" {
			d.Fields[k] = v
		}
	}
	if err := store.Save(d); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "new %s profile draft: %s\n", parent, store.Path())
	return nil
}

func runProfileSet(args []string) error {
	fs := flag.NewFlagSet("profile set", flag.ContinueOnError)
	dir := dirFlag(fs)
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	values, err := parseAssignments(fs.Args())
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return errors.New("usage: profile set key=value [key=value ...]")
	}

	return withSynchronizer(*dir, false, func(_ context.Context, s *profile.Synchronizer) error {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := s.SetField(k, values[k]); err != nil {
				return err
			}
		}
		fmt.Fprintf(stdout, "updated %d field(s); run profile save to send them\n", len(keys))
		return nil
	})
}

func runProfileAdd(args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: profile add <skills|educations|experiences|certifications> --field key=value ...")
	}
	kind, ok := profile.ParseSubKind(args[0])
	if !ok {
		return fmt.Errorf("unknown collection %q", args[0])
	}
	fs := flag.NewFlagSet("profile add", flag.ContinueOnError)
	dir := dirFlag(fs)
	fields := fieldFlags{}
	fs.Var(fields, "field", "entry field key=value (repeatable)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	return withSynchronizer(*dir, true, func(ctx context.Context, s *profile.Synchronizer) error {
		entries, err := s.Add(ctx, kind, profile.Payload(fields))
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(entries)
		}
		added := entries[len(entries)-1]
		fmt.Fprintf(stdout, "added %s entry %s (%s)\n", kind, added.LocalKey, entryRoute(added))
		return nil
	})
}

func runProfileRemove(args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: profile remove <collection> --key LOCALKEY")
	}
	kind, ok := profile.ParseSubKind(args[0])
	if !ok {
		return fmt.Errorf("unknown collection %q", args[0])
	}
	fs := flag.NewFlagSet("profile remove", flag.ContinueOnError)
	dir := dirFlag(fs)
	key := fs.String("key", "", "local key of the entry (see profile show)")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if strings.TrimSpace(*key) == "" {
		return errors.New("--key is required")
	}

	return withSynchronizer(*dir, true, func(ctx context.Context, s *profile.Synchronizer) error {
		entries, err := s.Remove(ctx, kind, *key)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "removed %s entry %s; %d left\n", kind, *key, len(entries))
		return nil
	})
}

func runProfileSave(args []string) error {
	fs := flag.NewFlagSet("profile save", flag.ContinueOnError)
	dir := dirFlag(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withSynchronizer(*dir, true, func(ctx context.Context, s *profile.Synchronizer) error {
		first := !s.Snapshot().Saved()
		saved, err := s.Save(ctx)
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(saved)
		}
		verb := "updated"
		if first {
			verb = "created"
		}
		fmt.Fprintf(stdout, "%s %s profile %s\n", verb, saved.Kind, *saved.ID)
		return nil
	})
}

func runProfileShow(args []string) error {
	fs := flag.NewFlagSet("profile show", flag.ContinueOnError)
	dir := dirFlag(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := loadDraft(profile.NewFileStore(*dir))
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(d)
	}
	printDraft(d)
	return nil
}

func runProfileDiscard(args []string) error {
	fs := flag.NewFlagSet("profile discard", flag.ContinueOnError)
	dir := dirFlag(fs)
	yes := fs.Bool("yes", false, "skip confirmation")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	store := profile.NewFileStore(*dir)
	exists, err := store.Exists()
	if err != nil {
		return err
	}
	if !exists {
		fmt.Fprintln(stdout, "no profile draft")
		return nil
	}
	if !*yes {
		ok, err := promptConfirm("Discard the local profile draft? Saved data on the portal is kept. [y/N]: ")
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("discard cancelled")
		}
	}
	lock, err := store.Lock()
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release()
	}()
	if err := store.Remove(); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "profile draft discarded")
	return nil
}

// withSynchronizer loads the draft under the store lock and runs fn with a
// synchronizer that writes every change back to the store. remote commands
// need a client; local-only ones skip loading it.
func withSynchronizer(dir string, remote bool, fn func(context.Context, *profile.Synchronizer) error) error {
	store := profile.NewFileStore(dir)
	lock, err := store.Lock()
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release()
	}()

	d, err := loadDraft(store)
	if err != nil {
		return err
	}

	opts := profile.Options{Store: store}
	var gw profile.Gateway = offlineGateway{}
	ctx := context.Background()
	if remote {
		a, err := loadApp(dir)
		if err != nil {
			return err
		}
		gw = a.client
		opts.Logger = a.logger
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.settings.RequestTimeout*2)
		defer cancel()
	}
	return fn(ctx, profile.NewSynchronizer(d, gw, opts))
}

func loadDraft(store *profile.FileStore) (profile.Draft, error) {
	exists, err := store.Exists()
	if err != nil {
		return profile.Draft{}, err
	}
	if !exists {
		return profile.Draft{}, model.Errorf(model.KindNotFound, "load profile", "no profile draft in %s (run profile new)", store.Dir)
	}
	return store.Load()
}

// offlineGateway backs commands that only edit local fields.
type offlineGateway struct{}

var errOffline = errors.New("command does not reach the portal")

func (offlineGateway) CreateSubResource(context.Context, string, string, string, any, any) error {
	return errOffline
}

func (offlineGateway) DeleteSubResource(context.Context, string, string, string, string) error {
	return errOffline
}

func (offlineGateway) CreateProfile(context.Context, string, any, any) error {
	return errOffline
}

func (offlineGateway) UpdateProfile(context.Context, string, string, any, any) error {
	return errOffline
}

func entryRoute(e profile.SubResource) string {
	if e.Persisted() {
		return "saved on portal as " + *e.RemoteID
	}
	return "local until profile save"
}

func printDraft(d profile.Draft) {
	id := "(unsaved)"
	if d.Saved() {
		id = *d.ID
	}
	fmt.Fprintf(stdout, "%s profile %s\n", d.Kind, id)
	if d.UpdatedAt != "" {
		fmt.Fprintf(stdout, "updated_at: %s\n", d.UpdatedAt)
	}
	keys := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(stdout, "  %s: %s\n", k, d.Fields[k])
	}
	for _, kind := range profile.SubKinds() {
		entries := d.Collections[kind]
		fmt.Fprintf(stdout, "%s (%d)\n", kind, len(entries))
		for _, e := range entries {
			parts := make([]string, 0, len(e.Payload))
			for _, k := range e.Payload.Keys() {
				parts = append(parts, k+"="+e.Payload[k])
			}
			mark := "local"
			if e.Persisted() {
				mark = "remote " + *e.RemoteID
			}
			fmt.Fprintf(stdout, "  - %s [%s] %s\n", e.LocalKey, mark, strings.Join(parts, " "))
		}
	}
}

func printProfileUsage() {
	fmt.Fprintln(stdout, "profile commands:")
	fmt.Fprintln(stdout, "  profile new --kind candidate|company [--field key=value ...] [--force]")
	fmt.Fprintln(stdout, "  profile set key=value [key=value ...]")
	fmt.Fprintln(stdout, "  profile add <skills|educations|experiences|certifications> --field key=value ...")
	fmt.Fprintln(stdout, "  profile remove <collection> --key LOCALKEY")
	fmt.Fprintln(stdout, "  profile save")
	fmt.Fprintln(stdout, "  profile show [--json]")
	fmt.Fprintln(stdout, "  profile discard [--yes]")
}
