package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/prediction"
	"github.com/trezcool/shule/core/seating"
	"github.com/trezcool/shule/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf          *core.Config
	db            *sqlx.DB
	usrSvc        user.ServiceInterface
	seatingSvc    seating.ServiceInterface
	predictionSvc prediction.ServiceInterface
	out           io.Writer
}

// help prints the usage of cmd and returns errHelp.
func help(cmd *cobra.Command, _ []string) error {
	_ = cmd.Help()
	return errHelp
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Administration commands of the " + cli.conf.AppName + " backend",
		Args:          cobra.ArbitraryArgs,
		RunE:          help,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.seatingCmd(),
		cli.predictCmd(),
	)
	return root
}

func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if cli.out != nil {
		root.SetOut(cli.out)
		root.SetErr(cli.out)
	}
	root.SetArgs(args[1:])
	return root.ExecuteContext(context.Background())
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
