package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sawmapp/claspsync/internal/cache"
	"github.com/sawmapp/claspsync/internal/chat"
	"github.com/sawmapp/claspsync/internal/config"
	"github.com/sawmapp/claspsync/internal/identity"
	"github.com/sawmapp/claspsync/internal/logging"
	"github.com/sawmapp/claspsync/internal/relay"
)

type programRunner interface {
	Run() (tea.Model, error)
}

type programFactory func(tea.Model, ...tea.ProgramOption) programRunner

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, newProgram programFactory) error {
	fs := flag.NewFlagSet("claspsync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	locality := fs.String("locality", "", "city or town to join, e.g. \"Mesa\"")
	region := fs.String("region", "", "state or province, e.g. \"AZ\"")
	roomFlag := fs.String("room", "", "explicit room address, overrides -locality/-region")
	name := fs.String("name", "", "display name shown to peers")
	if err := fs.Parse(args); err != nil {
		return err
	}

	room := roomFromFlags(*locality, *region, *roomFlag)
	if room == "" {
		return fmt.Errorf("a room is required: pass -room, or -locality and -region")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if *name != "" {
		cfg.DisplayName = *name
	}

	log, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	id, err := identity.Load(cfg.IdentityPath())
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	store, err := cache.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open message cache: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cache.NewSweeper(store, log).Run(ctx)

	session := relay.NewSession(cfg.RelayURL, nil, log)
	defer session.Close()

	ctrl := chat.NewController(session, store, id, log)
	defer ctrl.Disconnect()

	m := newChatModel(ctrl, room, cfg.DisplayName)

	if newProgram == nil {
		newProgram = func(model tea.Model, options ...tea.ProgramOption) programRunner {
			return tea.NewProgram(model, options...)
		}
	}

	p := newProgram(m, tea.WithAltScreen(), tea.WithInput(stdin), tea.WithOutput(stdout))
	_, err = p.Run()
	return err
}

func roomFromFlags(locality, region, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return chat.RoomAddress(locality, region)
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, nil); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
