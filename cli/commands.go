package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/cheggaaa/pb.v1"

	raucwebsvc "github.com/jonathanyhliang/raucweb-svc"
)

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the slot status of the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			status, err := svc.GetStatus(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "get status")
			}
			return render(a.out, a.v.GetString("output"), status)
		},
	}
}

func (a *app) uploadCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "upload BUNDLE",
		Short: "Upload a bundle to the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.upload(cmd.Context(), args[0], quiet)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, result)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not show a progress bar")
	return cmd
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show information about the uploaded bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			info, err := svc.GetBundleInfo(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "get bundle info")
			}
			return render(a.out, a.v.GetString("output"), info)
		},
	}
}

func (a *app) installCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the uploaded bundle and follow its progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := a.install(cmd.Context())
			return err
		},
	}
}

func (a *app) rebootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reboot",
		Short: "Reboot the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			result, err := svc.Reboot(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "reboot")
			}
			fmt.Fprintln(a.out, result)
			return nil
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	var (
		quiet  bool
		reboot bool
	)
	cmd := &cobra.Command{
		Use:   "update BUNDLE",
		Short: "Upload, inspect and install a bundle, then optionally reboot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			result, err := a.upload(ctx, args[0], quiet)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, result)

			svc, err := a.service()
			if err != nil {
				return err
			}
			info, err := svc.GetBundleInfo(ctx)
			if err != nil {
				return errors.Wrap(err, "get bundle info")
			}
			if err := render(a.out, a.v.GetString("output"), info); err != nil {
				return err
			}

			done, err := a.install(ctx)
			if err != nil {
				return err
			}
			if !reboot {
				return nil
			}
			if !done {
				return errors.New("install did not report completion, not rebooting")
			}
			result, err = svc.Reboot(ctx)
			if err != nil {
				return errors.Wrap(err, "reboot")
			}
			fmt.Fprintln(a.out, result)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not show a progress bar")
	cmd.Flags().BoolVar(&reboot, "reboot", false, "reboot once the install completed")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the web UI theming resolved from the environment",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return render(a.out, a.v.GetString("output"), loadAppConfig(a.v))
		},
	}
}

func (a *app) upload(ctx context.Context, path string, quiet bool) (string, error) {
	svc, err := a.service()
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open bundle")
	}
	defer f.Close()

	var content io.Reader = f
	if !quiet {
		fi, err := f.Stat()
		if err != nil {
			return "", errors.Wrap(err, "stat bundle")
		}
		bar := pb.New64(fi.Size()).SetUnits(pb.U_BYTES)
		bar.Output = a.errOut
		bar.ShowSpeed = true
		bar.Start()
		defer bar.Finish()
		content = bar.NewProxyReader(f)
	}

	result, err := svc.UploadBundle(ctx, raucwebsvc.Bundle{
		Name:    filepath.Base(path),
		Content: content,
	})
	if err != nil {
		return "", errors.Wrap(err, "upload bundle")
	}
	return result, nil
}

// install copies the install output to a.out as it arrives. It reports
// whether the server announced completion and fails if it announced an
// error.
func (a *app) install(ctx context.Context) (bool, error) {
	svc, err := a.service()
	if err != nil {
		return false, err
	}
	stream, err := svc.InstallBundle(ctx)
	if err != nil {
		return false, errors.Wrap(err, "install bundle")
	}
	defer stream.Close()

	var (
		scanner  raucwebsvc.ProgressScanner
		done     bool
		failures []string
	)
	track := func(events []raucwebsvc.ProgressEvent) {
		for _, ev := range events {
			switch ev.Kind {
			case raucwebsvc.KindDone:
				done = true
			case raucwebsvc.KindFailed:
				failures = append(failures, ev.Message)
			}
		}
	}

	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false, errors.Wrap(err, "read install progress")
		}
		if _, err := io.WriteString(a.out, chunk); err != nil {
			return false, err
		}
		track(scanner.Feed(chunk))
	}
	track(scanner.Flush())

	if len(failures) > 0 {
		return false, errors.Errorf("install failed: %s", failures[len(failures)-1])
	}
	if !done {
		level.Warn(a.logger).Log("msg", "install stream ended without completion notice")
	}
	return done, nil
}
