package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"domain-lifecycle/internal/models"
	"domain-lifecycle/internal/services"
)

// printer renders command results as JSON or aligned text
type printer struct {
	format string
	w      io.Writer
}

func (p printer) json(v interface{}) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) domains(recs []models.DomainRecord) error {
	if p.format == "json" {
		return p.json(recs)
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDOMAIN\tSTATUS\tEXPIRY\tSOURCE\tLOCKED\tREGISTRAR")
	for i := range recs {
		r := &recs[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			r.ID, r.FQDN(), r.Status, dateOrDash(r.ExpiryDate), r.ExpirySource, r.Locked, r.RegistrarName)
	}
	return tw.Flush()
}

func (p printer) domain(rec *models.DomainRecord) error {
	if p.format == "json" {
		return p.json(rec)
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%s\n", rec.ID)
	fmt.Fprintf(tw, "domain\t%s\n", rec.FQDN())
	fmt.Fprintf(tw, "owner\t%s\n", rec.Owner)
	fmt.Fprintf(tw, "status\t%s\n", rec.Status)
	fmt.Fprintf(tw, "expiry\t%s (%s)\n", dateOrDash(rec.ExpiryDate), rec.ExpirySource)
	fmt.Fprintf(tw, "nameservers\t%s\n", strings.Join(rec.Nameservers, ", "))
	fmt.Fprintf(tw, "locked\t%t\n", rec.Locked)
	fmt.Fprintf(tw, "auth code\t%t\n", rec.HasAuthCode())
	fmt.Fprintf(tw, "registrar\t%s\n", rec.RegistrarName)
	fmt.Fprintf(tw, "version\t%d\n", rec.Version)
	return tw.Flush()
}

func (p printer) logs(entries []models.SyncLogEntry) error {
	if p.format == "json" {
		return p.json(entries)
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tDOMAIN\tTYPE\tSTATUS\tORIGIN\tACTOR\tDETAIL")
	for _, e := range entries {
		detail := e.Detail
		if e.ErrorMessage != nil {
			detail = *e.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.UTC().Format(time.RFC3339), e.DomainID, e.SyncType, e.Status, e.Origin, e.Actor, detail)
	}
	return tw.Flush()
}

func (p printer) report(name string, r *services.SweepReport) error {
	if p.format == "json" {
		return p.json(r)
	}
	fmt.Fprintf(p.w, "%s: %d total, %d changed, %d failed, %d skipped in %s\n",
		name, r.Total, r.Changed, r.Failed, r.Skipped, r.Duration.Round(time.Millisecond))
	for _, e := range r.Errors {
		fmt.Fprintf(p.w, "  %s\n", e)
	}
	return nil
}

func (p printer) syncResult(r *services.SyncResult) error {
	if p.format == "json" {
		return p.json(r)
	}
	if len(r.CorrectedFields) == 0 {
		fmt.Fprintf(p.w, "%s: in sync\n", r.DomainID)
		return nil
	}
	fmt.Fprintf(p.w, "%s: corrected %s\n", r.DomainID, strings.Join(r.CorrectedFields, ", "))
	return nil
}

func (p printer) audit(r *services.AuditReport) error {
	if p.format == "json" {
		return p.json(r)
	}
	if r.Intact {
		fmt.Fprintf(p.w, "sync log intact: %d entries verified\n", r.Verified)
		return nil
	}
	fmt.Fprintf(p.w, "sync log broken after %d entries: %s\n", r.Verified, r.Problem)
	return nil
}

func dateOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}
