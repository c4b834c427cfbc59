package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jkaessens/qmanager/cmd/qm/command"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	cmd, err := command.NewCommand(os.Args[1:])
	if err != nil {
		return err
	}
	if cmd.HelpWanted {
		fmt.Print(command.Usage)
		return nil
	}

	if cmd.SubCommand == command.Daemon {
		return runDaemon()
	}

	ctx, cancel := context.WithCancel(context.Background())

	clientErr := make(chan error, 1)
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		clientErr <- command.Run(ctx, cmd)
	}()

	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-terminate:
		cancel()
	case err = <-clientErr:
		cancel()
	}
	wg.Wait()
	return err
}

// runDaemon runs the qmanagerd binary in the foreground as a child process
// and waits for it to exit. qm itself never links the daemon's
// scheduler/dispatcher -- it only knows how to find and start it, the way
// a package's wrapper CLI shells out to its own compiled daemon rather
// than embedding it.
func runDaemon() error {
	path, err := exec.LookPath("qmanagerd")
	if err != nil {
		return fmt.Errorf("locating qmanagerd on PATH: %w", err)
	}
	c := exec.Command(path, os.Args[2:]...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}
