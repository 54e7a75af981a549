package main

import (
	"context"
	"encoding/json"
	"fmt"

	"legato/internal/auth"
	"legato/internal/config"
	"legato/internal/player"
	"legato/internal/storage"

	"github.com/urfave/cli/v3"
)

func ownerFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "owner",
		Usage: "User whose player state to use",
		Value: auth.Anonymous,
	}
}

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Inspect or reset persisted player state",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the persisted state as JSON",
				Flags:  []cli.Flag{ownerFlag()},
				Action: showState,
			},
			{
				Name:   "reset",
				Usage:  "Replace the persisted state with the defaults",
				Flags:  []cli.Flag{ownerFlag()},
				Action: resetState,
			},
		},
	}
}

// openState opens owner's state storage without save debouncing, so that
// writes land before the command exits.
func openState(r *runner, owner string) (player.Storage, error) {
	cfg := r.cfg.Player
	cfg.SaveDebounceMS = 0
	if cfg.Storage == config.StorageMemory {
		return nil, fmt.Errorf("player state is kept in memory and not persisted")
	}
	return storage.Open(cfg, r.db, storage.Key(cfg.StateKey, owner), r.logger)
}

func showState(ctx context.Context, cmd *cli.Command) error {
	r, err := newRunner(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	st, err := openState(r, cmd.String("owner"))
	if err != nil {
		return err
	}
	loaded, err := st.Load()
	if err != nil {
		return err
	}
	if loaded == nil {
		fmt.Fprintln(cmd.Root().Writer, "No player state stored")
		return nil
	}

	data, err := json.MarshalIndent(loaded, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.Root().Writer, string(data))
	return nil
}

func resetState(ctx context.Context, cmd *cli.Command) error {
	r, err := newRunner(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	owner := cmd.String("owner")
	st, err := openState(r, owner)
	if err != nil {
		return err
	}

	if deleter, ok := st.(interface{ Delete() error }); ok {
		err = deleter.Delete()
	} else {
		err = st.Save(player.DefaultState())
	}
	if err != nil {
		return err
	}
	r.logger.WithField("owner", owner).Info("Player state reset")
	return nil
}
