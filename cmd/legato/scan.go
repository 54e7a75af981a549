package main

import (
	"context"
	"fmt"

	"legato/internal/library"
	"legato/internal/metadata"

	"github.com/urfave/cli/v3"
)

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan a folder into the library and exit",
		ArgsUsage: "[folder]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r, err := newRunner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			root := r.cfg.Music.LibraryPath
			if cmd.Args().Present() {
				root = cmd.Args().First()
			}

			extractor := metadata.NewExtractor(r.cfg.Music.SupportedFormats, r.logger)
			scanner := library.NewScanner(r.db, extractor, r.cfg.Music.ScanWorkers, r.logger)
			n, err := scanner.Scan(ctx, root)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "Scanned %d sounds from %s\n", n, root)
			return nil
		},
	}
}
