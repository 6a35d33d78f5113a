// save-cli просматривает, проверяет и переносит сохранения мира между хранилищами.
//
//	save-cli inspect -backend file -path saves -slot world
//	save-cli validate -config voxel.yaml
//	save-cli convert -backend file -path saves -to-backend sqlite -to-path saves.db
//	save-cli list -backend badger -path data/saves
//	save-cli schema
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/annel0/voxel-sandbox/internal/config"
	"github.com/annel0/voxel-sandbox/internal/persistence"
	"github.com/annel0/voxel-sandbox/internal/storage"
	"github.com/annel0/voxel-sandbox/internal/world/block"
)

const timeFormat = "2006-01-02T15:04:05Z07:00"

// storeFlags - общий набор флагов выбора хранилища
type storeFlags struct {
	configPath  *string
	backend     *string
	path        *string
	compression *string
	slot        *string
	dsn         *string
	redisAddr   *string
	mongoURI    *string
}

func addStoreFlags(fs *flag.FlagSet, prefix string) *storeFlags {
	return &storeFlags{
		configPath:  fs.String(prefix+"config", "", "YAML config (persistence section)"),
		backend:     fs.String(prefix+"backend", "", "Backend: "+backendList()),
		path:        fs.String(prefix+"path", "", "Directory (file, badger) or file (sqlite)"),
		compression: fs.String(prefix+"compression", "", "File compression: none, gzip, zstd"),
		slot:        fs.String(prefix+"slot", "", "Save slot"),
		dsn:         fs.String(prefix+"dsn", "", "MySQL DSN"),
		redisAddr:   fs.String(prefix+"redis", "", "Redis address"),
		mongoURI:    fs.String(prefix+"mongo", "", "MongoDB URI"),
	}
}

// open собирает конфигурацию: значения по умолчанию → YAML → флаги
func (f *storeFlags) open(ctx context.Context) (*persistence.Service, error) {
	cfg, err := config.Load(*f.configPath)
	if err != nil {
		return nil, err
	}
	p := cfg.Persistence
	override(&p.Backend, *f.backend)
	override(&p.Path, *f.path)
	override(&p.Compression, *f.compression)
	override(&p.Slot, *f.slot)
	override(&p.DSN, *f.dsn)
	override(&p.Redis.Addr, *f.redisAddr)
	override(&p.Mongo.URI, *f.mongoURI)

	storeCfg, err := storage.ConfigFrom(p)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия %s: %w", storeCfg.Backend, err)
	}
	return persistence.NewService(store, p.Slot, p.Timeout()), nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func backendList() string {
	s := ""
	for i, b := range storage.Backends {
		if i > 0 {
			s += ", "
		}
		s += string(b)
	}
	return s
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "inspect":
		err = runInspect(ctx, args)
	case "validate":
		err = runValidate(ctx, args)
	case "convert":
		err = runConvert(ctx, args)
	case "list":
		err = runList(ctx, args)
	case "schema":
		_, err = os.Stdout.Write(persistence.SchemaJSON())
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("❌ %s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: save-cli <inspect|validate|convert|list|schema> [flags]")
}

func runInspect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	sf := addStoreFlags(fs, "")
	_ = fs.Parse(args)

	svc, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer svc.Store().Close()

	snap, err := svc.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	counts := make(map[block.Type]int)
	for _, e := range snap.Blocks {
		counts[e.Type]++
	}
	types := make([]block.Type, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	fmt.Printf("Slot:      %s\n", svc.Slot())
	fmt.Printf("Version:   %d\n", snap.Version)
	fmt.Printf("World ID:  %s\n", orDash(snap.WorldID))
	if !snap.Timestamp.IsZero() {
		fmt.Printf("Saved at:  %s\n", snap.Timestamp.Format(timeFormat))
	}
	if snap.HasPlayer {
		fmt.Printf("Player:    (%.2f, %.2f, %.2f)\n", snap.Player.X, snap.Player.Y, snap.Player.Z)
	} else {
		fmt.Println("Player:    -")
	}
	fmt.Printf("Blocks:    %d\n", len(snap.Blocks))
	for _, t := range types {
		fmt.Printf("  %-6s %d\n", t, counts[t])
	}
	return nil
}

func runValidate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	sf := addStoreFlags(fs, "")
	_ = fs.Parse(args)

	svc, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer svc.Store().Close()

	snap, err := svc.LoadSnapshot(ctx)
	if errors.Is(err, persistence.ErrMalformedSaveData) {
		return fmt.Errorf("слот %s не прошёл проверку: %w", svc.Slot(), err)
	}
	if err != nil {
		return err
	}
	fmt.Printf("✅ %s: version %d, %d blocks\n", svc.Slot(), snap.Version, len(snap.Blocks))
	return nil
}

// runConvert читает сохранение и пишет его в текущем формате в другое хранилище или слот
func runConvert(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	src := addStoreFlags(fs, "")
	dst := addStoreFlags(fs, "to-")
	_ = fs.Parse(args)

	from, err := src.open(ctx)
	if err != nil {
		return err
	}
	defer from.Store().Close()

	to, err := dst.open(ctx)
	if err != nil {
		return err
	}
	defer to.Store().Close()

	snap, err := from.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	saved := snap.Timestamp
	if saved.IsZero() {
		saved = time.Now()
	}
	rec := persistence.Encode(snap.Store(), snap.Player, snap.WorldID, saved)
	if err := to.SaveRecord(ctx, rec); err != nil {
		return err
	}
	fmt.Printf("✅ %d blocks: %s → %s\n", len(rec.Blocks), from.Slot(), to.Slot())
	return nil
}

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	sf := addStoreFlags(fs, "")
	_ = fs.Parse(args)

	svc, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer svc.Store().Close()

	lister, ok := svc.Store().(storage.Lister)
	if !ok {
		return errors.New("хранилище не поддерживает перечисление слотов")
	}
	slots, err := lister.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range slots {
		fmt.Println(s)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
