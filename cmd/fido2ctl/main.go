package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/go-ctap/fido2/pkg/ctap2"
	"github.com/go-ctap/fido2/pkg/device"
	"github.com/go-ctap/fido2/pkg/options"
	"github.com/go-ctap/fido2/pkg/usbhid"

	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:  "fido2ctl",
		Usage: "Manage FIDO2 security keys",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			devicesCommand(),
			infoCommand(),
			retriesCommand(),
			setPINCommand(),
			changePINCommand(),
			verifyPINCommand(),
			resetCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newManager(cmd *cli.Command) *device.Manager {
	level := slog.LevelInfo
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []options.Option{options.WithLogger(logger)}
	manager := device.NewManager(usbhid.NewFactory(opts...), opts...)
	manager.AddDiscovery(usbhid.NewDiscovery(opts...))

	return manager
}

// withEngine connects the device (the flag-selected one, or the only
// one present) and hands a ready engine to fn.
func withEngine(ctx context.Context, cmd *cli.Command, fn func(ctx context.Context, engine *ctap2.Engine) error) error {
	manager := newManager(cmd)
	defer func() { _ = manager.DisconnectAll(ctx) }()

	deviceID := cmd.String("device")
	if deviceID == "" {
		devices, err := manager.ScanDevices(ctx)
		if err != nil {
			return err
		}
		switch len(devices) {
		case 0:
			return fmt.Errorf("no FIDO2 devices found")
		case 1:
			deviceID = devices[0].ID
		default:
			return fmt.Errorf("multiple devices found, select one with --device")
		}
	}

	if err := manager.ConnectDevice(ctx, deviceID); err != nil {
		return err
	}

	return manager.WithDevice(ctx, deviceID, func(ctx context.Context, dev device.Device) error {
		return fn(ctx, ctap2.NewEngine(dev))
	})
}

func deviceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "device",
		Usage: "Device ID as printed by the devices command",
	}
}

func devicesCommand() *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List connected FIDO2 devices",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			manager := newManager(cmd)
			devices, err := manager.ScanDevices(ctx)
			if err != nil {
				return err
			}

			return json.NewEncoder(os.Stdout).Encode(devices)
		},
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show authenticator info",
		Flags: []cli.Flag{deviceFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withEngine(ctx, cmd, func(ctx context.Context, engine *ctap2.Engine) error {
				info, err := engine.GetInfo(ctx)
				if err != nil {
					return err
				}

				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			})
		},
	}
}

func retriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "retries",
		Usage: "Show remaining PIN retries",
		Flags: []cli.Flag{deviceFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withEngine(ctx, cmd, func(ctx context.Context, engine *ctap2.Engine) error {
				retries, err := engine.GetPINRetries(ctx)
				if err != nil {
					return err
				}

				fmt.Printf("PIN retries remaining: %d\n", retries)
				return nil
			})
		},
	}
}

func setPINCommand() *cli.Command {
	return &cli.Command{
		Name:  "set-pin",
		Usage: "Set the PIN on a device that has none",
		Flags: []cli.Flag{
			deviceFlag(),
			&cli.StringFlag{
				Name:     "pin",
				Usage:    "New PIN (4-8 characters)",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withEngine(ctx, cmd, func(ctx context.Context, engine *ctap2.Engine) error {
				if err := engine.SetPIN(ctx, cmd.String("pin")); err != nil {
					return err
				}

				fmt.Println("PIN set")
				return nil
			})
		},
	}
}

func changePINCommand() *cli.Command {
	return &cli.Command{
		Name:  "change-pin",
		Usage: "Change the device PIN",
		Flags: []cli.Flag{
			deviceFlag(),
			&cli.StringFlag{
				Name:     "current-pin",
				Usage:    "Current PIN",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "new-pin",
				Usage:    "New PIN (4-8 characters)",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withEngine(ctx, cmd, func(ctx context.Context, engine *ctap2.Engine) error {
				if err := engine.ChangePIN(ctx, cmd.String("current-pin"), cmd.String("new-pin")); err != nil {
					return err
				}

				fmt.Println("PIN changed")
				return nil
			})
		},
	}
}

func verifyPINCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify-pin",
		Usage: "Verify the device PIN",
		Flags: []cli.Flag{
			deviceFlag(),
			&cli.StringFlag{
				Name:     "pin",
				Usage:    "PIN to verify",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withEngine(ctx, cmd, func(ctx context.Context, engine *ctap2.Engine) error {
				if err := engine.VerifyPIN(ctx, cmd.String("pin")); err != nil {
					return err
				}

				fmt.Println("PIN verified")
				return nil
			})
		},
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Factory-reset the authenticator (destroys all credentials)",
		Flags: []cli.Flag{deviceFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withEngine(ctx, cmd, func(ctx context.Context, engine *ctap2.Engine) error {
				if err := engine.Reset(ctx); err != nil {
					return err
				}

				fmt.Println("Device reset")
				return nil
			})
		},
	}
}
