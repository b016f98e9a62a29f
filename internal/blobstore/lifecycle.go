package blobstore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

const (
	expiryRuleID           = "statement-relay-blob-expiry"
	minioNoLifecycleConfig = "NoSuchLifecycleConfiguration"
)

// expiryDays rounds ttl up to whole days, the only granularity bucket
// lifecycles offer. Zero or negative ttl means no expiry.
func expiryDays(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	const day = 24 * time.Hour
	days := int(ttl / day)
	if ttl%day != 0 {
		days++
	}
	return days
}

// withMinioExpiry adds a delete-after-days rule scoped to prefix unless the
// configuration already expires that prefix. Other rules are kept as is.
func withMinioExpiry(cfg *lifecycle.Configuration, prefix string, days int) (*lifecycle.Configuration, bool) {
	if cfg == nil {
		cfg = lifecycle.NewConfiguration()
	}
	for _, rule := range cfg.Rules {
		if rule.ID == expiryRuleID {
			return cfg, false
		}
		scoped := rule.RuleFilter.Prefix == prefix || (rule.RuleFilter.Prefix == "" && rule.Prefix == prefix)
		if scoped && rule.Status == "Enabled" && rule.Expiration.Days > 0 {
			return cfg, false
		}
	}

	cfg.Rules = append(cfg.Rules, lifecycle.Rule{
		ID:         expiryRuleID,
		Status:     "Enabled",
		RuleFilter: lifecycle.Filter{Prefix: prefix},
		Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(days)},
	})
	return cfg, true
}

// withGCSExpiry is withMinioExpiry for a GCS bucket lifecycle.
func withGCSExpiry(lc storage.Lifecycle, prefix string, days int) (storage.Lifecycle, bool) {
	for _, rule := range lc.Rules {
		if rule.Action.Type != storage.DeleteAction || rule.Condition.AgeInDays <= 0 {
			continue
		}
		for _, p := range rule.Condition.MatchesPrefix {
			if p == prefix {
				return lc, false
			}
		}
	}

	rules := make([]storage.LifecycleRule, 0, len(lc.Rules)+1)
	rules = append(rules, lc.Rules...)
	rules = append(rules, storage.LifecycleRule{
		Action: storage.LifecycleAction{Type: storage.DeleteAction},
		Condition: storage.LifecycleCondition{
			AgeInDays:     int64(days),
			MatchesPrefix: []string{prefix},
		},
	})
	return storage.Lifecycle{Rules: rules}, true
}

func ensureMinioExpiry(ctx context.Context, client *minio.Client, bucket, prefix string, ttl time.Duration) error {
	days := expiryDays(ttl)
	if days == 0 {
		return nil
	}

	current, err := client.GetBucketLifecycle(ctx, bucket)
	if err != nil {
		if minio.ToErrorResponse(err).Code != minioNoLifecycleConfig {
			return fmt.Errorf("reading lifecycle: %w", err)
		}
		current = nil
	}

	cfg, changed := withMinioExpiry(current, prefix, days)
	if !changed {
		return nil
	}
	if err := client.SetBucketLifecycle(ctx, bucket, cfg); err != nil {
		return fmt.Errorf("setting lifecycle: %w", err)
	}
	return nil
}

func ensureGCSExpiry(ctx context.Context, bucket *storage.BucketHandle, prefix string, ttl time.Duration) error {
	days := expiryDays(ttl)
	if days == 0 {
		return nil
	}

	attrs, err := bucket.Attrs(ctx)
	if err != nil {
		return fmt.Errorf("reading bucket attrs: %w", err)
	}

	lc, changed := withGCSExpiry(attrs.Lifecycle, prefix, days)
	if !changed {
		return nil
	}
	if _, err := bucket.Update(ctx, storage.BucketAttrsToUpdate{Lifecycle: &lc}); err != nil {
		return fmt.Errorf("setting lifecycle: %w", err)
	}
	return nil
}
