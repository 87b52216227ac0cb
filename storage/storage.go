// Package storage persists dashboards in Azure Table Storage, caches them in
// Redis, queues Todoist events and keeps the Postgres tasks log.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"github.com/mizuki-commits/dashboard-template/domain"
)

const (
	dashboardRowKey = "dashboard"
	// Table string properties hold at most 64 KiB of UTF-16.
	chunkBytes = 30000
	maxChunks  = 16
)

// ErrDashboardTooLarge is returned when a document does not fit one entity.
var ErrDashboardTooLarge = errors.New("dashboard exceeds table entity size")

// DashboardStore loads and saves whole dashboards.
type DashboardStore interface {
	LoadDashboard(ctx context.Context, userID string) (domain.Dashboard, error)
	SaveDashboard(ctx context.Context, d domain.Dashboard) error
}

var retryStatusCodes = []int{408, 429, 500, 502, 503, 504}

// Tables stores one entity per user: PartitionKey is the user id and the
// JSON document is split across Payload0..PayloadN string properties.
type Tables struct {
	dashboards *aztables.Client
}

// NewTables connects to the dashboard table.
func NewTables(connStr, table string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   retryStatusCodes,
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{dashboards: svc.NewClient(table)}, nil
}

func (t *Tables) LoadDashboard(ctx context.Context, userID string) (domain.Dashboard, error) {
	resp, err := t.dashboards.GetEntity(ctx, userID, dashboardRowKey, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return domain.Dashboard{}, domain.ErrNotFound
		}
		return domain.Dashboard{}, err
	}
	return decodeEntity(resp.Value)
}

// SaveDashboard replaces the stored document. Concurrent writers are last write wins.
func (t *Tables) SaveDashboard(ctx context.Context, d domain.Dashboard) error {
	payload, err := encodeEntity(d)
	if err != nil {
		return err
	}
	_, err = t.dashboards.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func encodeEntity(d domain.Dashboard) ([]byte, error) {
	doc, err := sonic.MarshalString(d)
	if err != nil {
		return nil, err
	}
	chunks := splitChunks(doc, chunkBytes)
	if len(chunks) > maxChunks {
		return nil, fmt.Errorf("%w: %d bytes", ErrDashboardTooLarge, len(doc))
	}
	ent := map[string]any{
		"PartitionKey": d.UserID,
		"RowKey":       dashboardRowKey,
		"Chunks":       len(chunks),
		"UpdatedAt":    d.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	for i, c := range chunks {
		ent["Payload"+strconv.Itoa(i)] = c
	}
	return sonic.Marshal(ent)
}

func decodeEntity(data []byte) (domain.Dashboard, error) {
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return domain.Dashboard{}, err
	}
	n, _ := raw["Chunks"].(float64)
	var sb strings.Builder
	for i := 0; i < int(n); i++ {
		part, ok := raw["Payload"+strconv.Itoa(i)].(string)
		if !ok {
			return domain.Dashboard{}, fmt.Errorf("dashboard entity: missing chunk %d", i)
		}
		sb.WriteString(part)
	}
	var d domain.Dashboard
	if err := sonic.UnmarshalString(sb.String(), &d); err != nil {
		return domain.Dashboard{}, err
	}
	if pk, ok := raw["PartitionKey"].(string); ok && d.UserID == "" {
		d.UserID = pk
	}
	return d, nil
}

// splitChunks cuts s into pieces of at most size bytes without splitting a rune.
func splitChunks(s string, size int) []string {
	if s == "" {
		return []string{""}
	}
	var out []string
	for len(s) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	return append(out, s)
}

// LoadOrSeed returns the stored dashboard or a freshly seeded one for a user
// seen for the first time. The seeded document is not saved.
func LoadOrSeed(ctx context.Context, store DashboardStore, userID string, now time.Time) (domain.Dashboard, error) {
	d, err := store.LoadDashboard(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewDashboard(userID, now), nil
	}
	if err != nil {
		return domain.Dashboard{}, err
	}
	if d.Boards == nil {
		d.Boards = make(map[domain.Mode]domain.ModeBoard, len(domain.Modes))
	}
	if d.Mode == "" {
		d.Mode = domain.DefaultMode
	}
	return d, nil
}
