// Command release prepares a new script version: it prompts for the version
// number and change list, updates the versions file, optionally publishes
// the built script and invalidates the CDN.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/klaviyo-webflow/internal/config"
	"github.com/ignite/klaviyo-webflow/internal/pkg/distlock"
	"github.com/ignite/klaviyo-webflow/internal/release"
	"github.com/ignite/klaviyo-webflow/internal/storage"
	"github.com/ignite/klaviyo-webflow/internal/versions"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "release: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Redis.URL != "" {
		unlock, err := lockRelease(cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer unlock()
	}

	versionsFile := cfg.CDN.VersionsFile
	if versionsFile == "" {
		versionsFile = "config/versions.yaml"
	}

	table, err := versions.LoadFile(versionsFile)
	if errors.Is(err, os.ErrNotExist) {
		table, err = versions.Default(), nil
	}
	if err != nil {
		return err
	}

	suggested := release.NextPatch(table)
	fmt.Printf("Current version: %s\nSuggested next version: %s\n\n", release.Current(table), suggested)

	var version string
	if err := survey.AskOne(&survey.Input{
		Message: "New version number:",
		Default: suggested,
	}, &version, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	var changesText string
	if err := survey.AskOne(&survey.Multiline{
		Message: fmt.Sprintf("Changes for %s (one per line):", version),
	}, &changesText, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	next, err := release.Prepare(table, version, strings.Split(changesText, "\n"), time.Now())
	if err != nil {
		return err
	}
	if err := next.SaveFile(versionsFile); err != nil {
		return err
	}
	latest, _ := next.Latest()
	fmt.Printf("Version configuration updated to %s (%s)\n", latest.Version, versionsFile)

	publish := false
	if err := survey.AskOne(&survey.Confirm{
		Message: "Copy the built script into the public directory?",
		Default: true,
	}, &publish); err != nil {
		return err
	}
	if publish {
		written, err := release.Publish(cfg.CDN, latest)
		if errors.Is(err, release.ErrSourceMissing) {
			fmt.Printf("%v; copy the file manually.\n", err)
		} else if err != nil {
			return err
		}
		for _, path := range written {
			fmt.Printf("Copied script to %s\n", path)
		}
	}

	if cfg.Release.CloudFrontDistributionID == "" {
		return nil
	}
	invalidate := false
	if err := survey.AskOne(&survey.Confirm{
		Message: fmt.Sprintf("Invalidate CloudFront distribution %s?", cfg.Release.CloudFrontDistributionID),
	}, &invalidate); err != nil {
		return err
	}
	if !invalidate {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	awsCfg, err := storage.LoadAWSConfig(ctx, cfg.CDN.AWSRegion, cfg.CDN.GetAWSProfile())
	if err != nil {
		return err
	}
	id, err := release.NewInvalidator(cloudfront.NewFromConfig(awsCfg), cfg.Release.CloudFrontDistributionID).
		Invalidate(ctx, latest.Version)
	if err != nil {
		return err
	}
	fmt.Printf("Invalidation %s created\n", id)
	return nil
}

// lockRelease takes the shared release lock so concurrent runs cannot
// interleave writes to the versions file.
func lockRelease(redisURL string) (func(), error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	lock := distlock.New(client, "release", 30*time.Minute)
	if err := lock.Acquire(context.Background()); err != nil {
		client.Close()
		if errors.Is(err, distlock.ErrHeld) {
			return nil, errors.New("another release is in progress")
		}
		return nil, err
	}
	return func() {
		_ = lock.Release(context.Background())
		client.Close()
	}, nil
}
