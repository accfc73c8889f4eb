package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/entitystore/internal/catalog"
	"github.com/rpattn/entitystore/internal/domain"
	"github.com/rpattn/entitystore/internal/repository"
)

func (a *app) verify(stdout io.Writer) error {
	types := a.catalog.Types.List()
	if err := a.catalog.Engine.Verify(types...); err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tCATEGORY\tVERSION")
	for _, t := range types {
		fmt.Fprintf(w, "%s\t%s\t%d\n", t.Name, t.Category, t.ModelVersion)
	}
	return w.Flush()
}

func (a *app) list(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("list", flag.ContinueOnError)
	flags.SetOutput(stderr)
	label := flags.String("label", "", "only entities carrying this label")
	parent := flags.String("parent", "", "only children of this entity id")
	search := flags.String("search", "", "only entities whose name or description contains this text")
	sortBy := flags.String("sort", "name", "name, last_modified or property:<key>, prefix with - to reverse")
	var filter domain.EntityFilter
	flags.Func("property", "only entities with key=value, may be repeated", func(raw string) error {
		key, value, ok := strings.Cut(raw, "=")
		if !ok || key == "" {
			return fmt.Errorf("expected key=value, got %q", raw)
		}
		filter.PropertyFilters = append(filter.PropertyFilters, domain.PropertyFilter{Key: key, Value: value})
		return nil
	})
	if err := flags.Parse(args); err != nil || flags.NArg() != 1 {
		return errUsage
	}
	order, err := domain.ParseEntitySort(*sortBy)
	if err != nil {
		return err
	}
	filter.TextSearch = *search

	predicates := []repository.Predicate{filter.Matches}
	if *label != "" {
		predicates = append(predicates, catalog.HasLabel(*label))
	}
	if *parent != "" {
		parentID, err := uuid.Parse(*parent)
		if err != nil {
			return fmt.Errorf("invalid parent id %q: %w", *parent, err)
		}
		predicates = append(predicates, catalog.ChildrenOf(parentID))
	}

	entities, err := a.repo.GetAll(ctx, flags.Arg(0), allOf(predicates))
	if err != nil {
		return err
	}
	order.Sort(entities)

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLAST MODIFIED")
	for _, e := range entities {
		modified := ""
		if !e.LastModified.IsZero() {
			modified = e.LastModified.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, e.Name, modified)
	}
	return w.Flush()
}

func allOf(predicates []repository.Predicate) repository.Predicate {
	return func(e domain.Entity) bool {
		for _, p := range predicates {
			if !p(e) {
				return false
			}
		}
		return true
	}
}

func (a *app) show(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) != 2 {
		return errUsage
	}
	id, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[1], err)
	}
	e, ok, err := a.repo.Load(ctx, args[0], id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %s not found", args[0], id)
	}

	t, _ := a.catalog.Types.Lookup(e.Type)
	doc, err := a.catalog.Codec.Encode(e, t)
	if err != nil {
		return err
	}
	b, err := doc.Bytes()
	if err != nil {
		return err
	}
	_, err = stdout.Write(b)
	return err
}

func (a *app) history(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) != 2 {
		return errUsage
	}
	id, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[1], err)
	}
	entries, err := a.repo.History(ctx, args[0], id)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQUENCE\tARCHIVED\tBYTES")
	for _, entry := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\n", entry.Sequence, entry.CreatedAt.Format(time.RFC3339Nano), len(entry.Content))
	}
	return w.Flush()
}

func (a *app) diff(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) != 3 {
		return errUsage
	}
	id, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[1], err)
	}
	sequence, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid sequence %q: %w", args[2], err)
	}
	out, err := a.repo.Diff(ctx, args[0], id, sequence)
	if err != nil {
		return err
	}
	if out == "" {
		fmt.Fprintln(stdout, "no changes")
		return nil
	}
	_, err = io.WriteString(stdout, out)
	return err
}

func (a *app) upgrade(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("upgrade", flag.ContinueOnError)
	flags.SetOutput(stderr)
	user := flags.String("user", "entitystore", "user recorded as the last modifier")
	if err := flags.Parse(args); err != nil || flags.NArg() != 1 {
		return errUsage
	}

	report, err := a.repo.Upgrade(ctx, flags.Arg(0), *user)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "scanned %d, upgraded %d, failed %d\n", report.Scanned, report.Upgraded, report.Failed)
	if report.Failed > 0 {
		return fmt.Errorf("%d documents could not be upgraded", report.Failed)
	}
	return nil
}
