// Copyright 2025 seqops LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/seqops/dropsync/cmd/dropsync/commands"
	"github.com/seqops/dropsync/cmd/dropsync/opts"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "dropsync",
		Short:        "Synchronize instrument drop folders into a data repository",
		Long:         "dropsync discovers files in a drop folder, verifies their integrity,\nmatches them against metadata, copies them to stable repository paths\nand keeps the metadata store's records in step.",
		SilenceUsage: true,
	}
	addRootFlags(root)

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		setupLogging()
		cmd.SetContext(zerolog.DefaultContextLogger.WithContext(cmd.Context()))
		return nil
	}

	provide := opts.Provider(newRootOpts)
	root.AddCommand(
		commands.NewPlanCmd(provide),
		commands.NewSyncCmd(provide),
		commands.NewGetCmd(provide),
		newVersionCmd(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
