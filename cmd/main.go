package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
)

func printBanner() {
	figure1 := figure.NewFigure("Frog", "isometric1", true)
	figure2 := figure.NewFigure("SDM", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	bannercolor.Cyan(figure2.String())
	fmt.Println()
}

// recoverPanic prints where the panic happened and reports it to the error
// webhook before exiting.
func recoverPanic(c *cli) {
	r := recover()
	if r == nil {
		return
	}
	pc, file, line, ok := runtime.Caller(3) // 3 levels up is often the panic source
	location := "Unknown location"
	if ok {
		location = fmt.Sprintf("%s:%d in %s", file, line, runtime.FuncForPC(pc).Name())
	}

	fmt.Printf("\n\033[31mPANIC: %v\033[0m\n", r)
	fmt.Printf("\033[31mLocation: %s\033[0m\n", location)
	fmt.Printf("\033[31mPlease check the input and try again.\033[0m\n")
	fmt.Printf("\033[31mExiting...\033[0m\n")

	if c.app != nil {
		errMessage := fmt.Sprintf("Frog SDM CLI panic:\n\n%v\n\nLocation: %s\n\nStack trace:\n%s", r, location, debug.Stack())
		if err := c.app.Notifier.Error(context.Background(), errMessage); err != nil {
			fmt.Printf("\033[31mFailed to send notification: %s\033[0m\n", err.Error())
		}
		c.app.Close()
	}
	os.Exit(2)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{}
	defer recoverPanic(c)

	if err := c.root().ExecuteContext(ctx); err != nil {
		c.close()
		fmt.Fprintf(os.Stderr, "\033[31mError: %s\033[0m\n", err)
		stop()
		os.Exit(1)
	}
}
