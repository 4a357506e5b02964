package alerts

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"opsdash/internal/isolation"
	"opsdash/internal/scope"
	"opsdash/internal/transport"
)

// ErrMalformedExport 导出内容不是合法的 CSV
var ErrMalformedExport = errors.New("alerts: malformed export")

// Export downloads the CSV export for filters. Every data row is checked for
// the effective tenant before any byte is handed to the caller.
func (s *Service) Export(ctx context.Context, filters map[string]string, override string) ([]byte, error) {
	params, sc, gen, err := s.resolve(ctx, "alerts.export", filters, override)
	if err != nil {
		return nil, err
	}

	body, _, err := s.client.SendRaw(ctx, transport.Request{Method: http.MethodGet, Path: "/alerts/export", Params: params})
	if err != nil {
		return nil, fmt.Errorf("导出告警失败: %w", err)
	}
	if err := s.sameIdentity(gen); err != nil {
		return nil, err
	}

	rows, err := parseExport(body)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate("alerts export", sc, rows); err != nil {
		return nil, err
	}
	return body, nil
}

// exportRow 导出文件中的一行
type exportRow struct {
	id    string
	orgID string
}

func (r exportRow) RecordID() string       { return r.id }
func (r exportRow) RecordTenantID() string { return r.orgID }

// parseExport reads the id and org_id columns of the export. A file without
// an org_id column yields rows with an empty tenant.
func parseExport(body []byte) (isolation.Slice[exportRow], error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExport, err)
	}

	idCol, orgCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "id":
			idCol = i
		case scope.ParamTenantID:
			orgCol = i
		}
	}

	var rows isolation.Slice[exportRow]
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedExport, err)
		}
		rows = append(rows, exportRow{id: column(rec, idCol), orgID: column(rec, orgCol)})
	}
	return rows, nil
}

func column(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
