// Command formbridge loads an HTML page, arms its opted-in forms and submits
// one of them with the given field values.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/klaviyo-webflow/internal/config"
	"github.com/ignite/klaviyo-webflow/internal/forms"
	"github.com/ignite/klaviyo-webflow/internal/klaviyo"
	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
	"github.com/ignite/klaviyo-webflow/internal/storage"
	"github.com/ignite/klaviyo-webflow/internal/tracking"
)

// fieldFlag collects repeated -field name=value pairs.
type fieldFlag struct{ values url.Values }

func (f *fieldFlag) String() string {
	if f.values == nil {
		return ""
	}
	return f.values.Encode()
}

func (f *fieldFlag) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	if f.values == nil {
		f.values = url.Values{}
	}
	f.values.Add(name, value)
	return nil
}

type result struct {
	Form       string                 `json:"form"`
	State      string                 `json:"state"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Payload    interface{}            `json:"payload,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Status     int                    `json:"status,omitempty"`
}

func main() {
	var fields fieldFlag
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	pagePath := flag.String("page", "", "HTML page to load (required)")
	pageURL := flag.String("url", "", "URL reported for the page in tracking events")
	formID := flag.String("form", "", "id of the form to submit (default: first armed form)")
	outPath := flag.String("out", "", "write the page HTML after submission to this file")
	timeout := flag.Duration("timeout", 60*time.Second, "overall timeout")
	flag.Var(&fields, "field", "field value as name=value (repeatable)")
	flag.Parse()

	if err := run(*configPath, *pagePath, *pageURL, *formID, *outPath, *timeout, fields.values); err != nil {
		fmt.Fprintf(os.Stderr, "formbridge: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, pagePath, pageURL, formID, outPath string, timeout time.Duration, values url.Values) error {
	if pagePath == "" {
		return errors.New("-page is required")
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	f, err := os.Open(pagePath)
	if err != nil {
		return err
	}
	page, err := forms.ParsePage(f, pageURL)
	f.Close()
	if err != nil {
		return err
	}

	client := klaviyo.NewClientFromConfig(cfg.Klaviyo)
	queue := klaviyo.NewEventQueue()
	controller := forms.NewController(page, forms.NewResolverFromConfig(cfg.Klaviyo), client, queue, nil)

	armed := controller.Init(ctx)

	var publisher *tracking.Publisher
	if cfg.Tracking.SQSQueueURL != "" {
		awsCfg, err := storage.LoadAWSConfig(ctx, cfg.Tracking.AWSRegion, cfg.CDN.GetAWSProfile())
		if err != nil {
			return err
		}
		publisher = tracking.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.Tracking.SQSQueueURL)
		queue.Ready(ctx, publisher)
	} else {
		queue.Ready(ctx, client)
	}

	var h *forms.Handle
	if formID != "" {
		h = controller.Lookup(formID)
	} else if len(armed) > 0 {
		h = armed[0]
	}
	if h == nil {
		return fmt.Errorf("no armed form found (armed: %d)", len(armed))
	}

	out, err := controller.Submit(ctx, h, values)
	if err != nil {
		return err
	}
	queue.Wait()
	if publisher != nil {
		publisher.Wait()
	}

	res := result{Form: h.Form.ID(), State: out.State, Attributes: out.Mapped.Attributes}
	if out.Payload != nil {
		res.Payload = out.Payload
	}
	if out.Err != nil {
		res.Error = out.Err.Error()
		if apiErr, ok := klaviyo.AsAPIError(out.Err); ok {
			res.Status = apiErr.Status
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}

	if outPath != "" {
		html, err := page.HTML()
		if err != nil {
			return err
		}
		if err := os.WriteFile(outPath, []byte(html), 0644); err != nil {
			return err
		}
	}
	return nil
}
