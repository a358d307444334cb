package render

import (
	"fmt"
	"image"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/stats"
)

const (
	marginMM    = 15.0
	lineH       = 5.5
	fontFamily  = "Helvetica"
	photoName   = "player-photo"
	chartHeight = 50.0
)

var recommendationLabels = map[string]string{
	models.RecommendationSign:    "FICHAR",
	models.RecommendationFollow:  "SEGUIMIENTO",
	models.RecommendationDiscard: "DESCARTAR",
}

var trendLabels = map[string]string{
	stats.TrendUp:     "al alza",
	stats.TrendDown:   "a la baja",
	stats.TrendStable: "estable",
}

type rgb struct{ r, g, b int }

var (
	accent    = rgb{0, 82, 147}
	lightFill = rgb{232, 239, 247}
	grey      = rgb{110, 110, 110}
	black     = rgb{0, 0, 0}
)

// document wraps one fpdf instance. tr maps UTF-8 to the cp1252 encoding the
// core fonts use.
type document struct {
	pdf      *fpdf.Fpdf
	tr       func(string) string
	hasPhoto bool
	now      time.Time
}

func newDocument(now time.Time) *document {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginMM, marginMM, marginMM)
	pdf.SetAutoPageBreak(true, marginMM)
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)
	pdf.AliasNbPages("")

	d := &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor(""), now: now}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		d.font("I", 8, grey)
		pdf.CellFormat(0, 5, d.tr(fmt.Sprintf("Generado el %s · página %d/{nb}",
			now.Format("02/01/2006 15:04"), pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	return d
}

func (d *document) registerPhoto(img image.Image) {
	buf, err := encodeJPEG(img)
	if err != nil {
		return
	}
	d.pdf.RegisterImageOptionsReader(photoName, fpdf.ImageOptions{ImageType: "JPG"}, buf)
	d.hasPhoto = !d.pdf.Err()
}

func (d *document) font(style string, size float64, c rgb) {
	d.pdf.SetFont(fontFamily, style, size)
	d.pdf.SetTextColor(c.r, c.g, c.b)
}

func (d *document) contentWidth() float64 {
	w, _ := d.pdf.GetPageSize()
	left, _, right, _ := d.pdf.GetMargins()
	return w - left - right
}

// need starts a new page when fewer than h mm remain.
func (d *document) need(h float64) {
	_, pageH := d.pdf.GetPageSize()
	_, _, _, bottom := d.pdf.GetMargins()
	if d.pdf.GetY()+h > pageH-bottom {
		d.pdf.AddPage()
	}
}

func (d *document) sectionTitle(title string) {
	d.need(20)
	d.pdf.Ln(4)
	d.font("B", 12, accent)
	d.pdf.CellFormat(0, 7, d.tr(title), "B", 1, "L", false, 0, "")
	d.pdf.Ln(2)
}

func (d *document) keyValue(key, value string, keyW float64) {
	if value == "" {
		value = "-"
	}
	d.font("B", 9, grey)
	d.pdf.CellFormat(keyW, lineH, d.tr(key), "", 0, "L", false, 0, "")
	d.font("", 10, black)
	d.pdf.CellFormat(0, lineH, d.tr(value), "", 1, "L", false, 0, "")
}

func (d *document) header(b Bundle) {
	p := b.Player
	top := d.pdf.GetY()

	d.font("B", 20, accent)
	d.pdf.CellFormat(0, 10, d.tr(p.Name), "", 1, "L", false, 0, "")
	d.font("", 11, grey)
	d.pdf.CellFormat(0, 6, d.tr(joinNonEmpty(" · ", p.Position, p.Team)), "", 1, "L", false, 0, "")
	d.pdf.Ln(2)

	age := ""
	if a := p.AgeAt(d.now); a != nil {
		age = fmt.Sprintf("%d años", *a)
	}
	rows := [][2]string{
		{"Nacimiento", joinNonEmpty(" · ", formatDate(p.BirthDate), age)},
		{"Nacionalidad", p.Nationality},
		{"Pie", p.Foot},
		{"Altura / peso", joinNonEmpty(" / ", unit(p.HeightCM, "cm"), unit(p.WeightKG, "kg"))},
		{"Dorsal", intText(p.ShirtNumber)},
		{"Valor de mercado", marketValue(p.MarketValueKEUR)},
		{"ELO", intText(p.ELO)},
	}
	for _, row := range rows {
		d.keyValue(row[0], row[1], 35)
	}

	if d.hasPhoto {
		x := d.contentWidth() + marginMM - photoW
		d.pdf.ImageOptions(photoName, x, top, photoW, photoH, false,
			fpdf.ImageOptions{ImageType: "JPG"}, 0, "")
		if bottom := top + photoH + 2; d.pdf.GetY() < bottom {
			d.pdf.SetY(bottom)
		}
	}
}

func (d *document) statsBlock(b Bundle) {
	d.sectionTitle("Resumen de valoraciones")
	if b.Stats.Count == 0 {
		d.font("I", 10, grey)
		d.pdf.CellFormat(0, lineH, d.tr("Sin informes valorados."), "", 1, "L", false, 0, "")
		return
	}

	cells := [][2]string{
		{"Informes", fmt.Sprintf("%d", b.Stats.Count)},
		{"Media", score(b.Stats.Mean)},
		{"Mediana", score(b.Stats.Median)},
		{"Mín / máx", score(b.Stats.Min) + " / " + score(b.Stats.Max)},
		{"Desv. típica", score(b.Stats.StdDev)},
		{"Tendencia", trendText(b.Trend)},
	}
	w := d.contentWidth() / float64(len(cells))
	d.pdf.SetFillColor(lightFill.r, lightFill.g, lightFill.b)
	d.font("B", 8, grey)
	for _, c := range cells {
		d.pdf.CellFormat(w, 5, d.tr(c[0]), "", 0, "C", true, 0, "")
	}
	d.pdf.Ln(-1)
	d.font("B", 11, black)
	for _, c := range cells {
		d.pdf.CellFormat(w, 8, d.tr(c[1]), "", 0, "C", true, 0, "")
	}
	d.pdf.Ln(-1)

	if b.Aggregate != nil {
		d.font("I", 8, grey)
		d.pdf.CellFormat(0, 5, d.tr(countLabel(b.Aggregate.ReportCount, "informe")+" en total"),
			"", 1, "R", false, 0, "")
	}
}

// categoryTable draws one bar per category mean on a 0-10 scale.
func (d *document) categoryTable(b Bundle) {
	if b.Aggregate == nil || len(b.Aggregate.CategoryMeans) == 0 {
		return
	}
	d.sectionTitle("Media por categoría")

	labelW := 55.0
	barW := d.contentWidth() - labelW - 15
	for _, name := range slices.Sorted(maps.Keys(b.Aggregate.CategoryMeans)) {
		mean := b.Aggregate.CategoryMeans[name]
		d.need(lineH + 1)
		y := d.pdf.GetY()

		d.font("", 9, black)
		d.pdf.CellFormat(labelW, lineH, d.tr(name), "", 0, "L", false, 0, "")
		x := d.pdf.GetX()
		d.pdf.SetFillColor(lightFill.r, lightFill.g, lightFill.b)
		d.pdf.Rect(x, y+1, barW, lineH-2, "F")
		d.pdf.SetFillColor(accent.r, accent.g, accent.b)
		d.pdf.Rect(x, y+1, barW*clamp(mean/10, 0, 1), lineH-2, "F")
		d.pdf.SetX(x + barW + 2)
		d.font("B", 9, black)
		d.pdf.CellFormat(0, lineH, score(mean), "", 1, "R", false, 0, "")
	}
}

// timelineChart plots overall scores in report order.
func (d *document) timelineChart(b Bundle) {
	if b.Aggregate == nil || len(b.Aggregate.Series) < 2 {
		return
	}
	d.sectionTitle("Evolución")
	d.need(chartHeight + 10)

	series := b.Aggregate.Series
	x0 := marginMM + 8
	y0 := d.pdf.GetY()
	w := d.contentWidth() - 8
	h := chartHeight

	d.pdf.SetDrawColor(200, 200, 200)
	d.pdf.SetLineWidth(0.1)
	d.font("", 7, grey)
	for v := 0; v <= 10; v += 2 {
		y := y0 + h - h*float64(v)/10
		d.pdf.Line(x0, y, x0+w, y)
		d.pdf.SetXY(marginMM, y-2)
		d.pdf.CellFormat(7, 4, fmt.Sprintf("%d", v), "", 0, "R", false, 0, "")
	}

	step := w / float64(len(series)-1)
	d.pdf.SetDrawColor(accent.r, accent.g, accent.b)
	d.pdf.SetFillColor(accent.r, accent.g, accent.b)
	d.pdf.SetLineWidth(0.6)
	px, py := 0.0, 0.0
	for i, p := range series {
		x := x0 + step*float64(i)
		y := y0 + h - h*clamp(p.Score/10, 0, 1)
		if i > 0 {
			d.pdf.Line(px, py, x, y)
		}
		d.pdf.Circle(x, y, 0.9, "F")
		px, py = x, y
	}
	d.pdf.SetLineWidth(0.2)
	d.pdf.SetDrawColor(0, 0, 0)

	d.pdf.SetXY(x0, y0+h+1)
	d.font("", 7, grey)
	d.pdf.CellFormat(w/2, 4, formatDate(series[0].Date), "", 0, "L", false, 0, "")
	d.pdf.CellFormat(w/2, 4, formatDate(series[len(series)-1].Date), "", 1, "R", false, 0, "")
}

func (d *document) careerTable(b Bundle) {
	if len(b.Seasons) == 0 {
		return
	}
	d.sectionTitle("Trayectoria · " + countLabel(len(b.Seasons), "temporada"))

	cols := []struct {
		title string
		w     float64
	}{
		{"Temporada", 22}, {"Equipo", 44}, {"Competición", 44},
		{"PJ", 12}, {"Min", 16}, {"G", 10}, {"A", 10}, {"TA", 11}, {"TR", 11},
	}
	d.pdf.SetFillColor(lightFill.r, lightFill.g, lightFill.b)
	d.font("B", 8, black)
	for _, c := range cols {
		d.pdf.CellFormat(c.w, 6, d.tr(c.title), "1", 0, "C", true, 0, "")
	}
	d.pdf.Ln(-1)

	for _, s := range b.Seasons {
		d.need(6)
		style := ""
		if s.Competition == "" {
			style = "B" // club-season total
		}
		d.font(style, 8, black)
		values := []string{
			s.Season, s.Team, s.Competition,
			intText(s.Appearances), intText(s.Minutes), intText(s.Goals),
			intText(s.Assists), intText(s.YellowCards), intText(s.RedCards),
		}
		for i, c := range cols {
			align := "C"
			if i == 1 || i == 2 {
				align = "L"
			}
			d.pdf.CellFormat(c.w, 5.5, d.tr(truncate(values[i], 28)), "1", 0, align, false, 0, "")
		}
		d.pdf.Ln(-1)
	}
}

func (d *document) summarySection(b Bundle) {
	if b.Summary == nil || b.Summary.IsEmpty() {
		return
	}
	d.sectionTitle("Síntesis automática")
	d.bulletList("Fortalezas", b.Summary.Strengths)
	d.bulletList("Aspectos a mejorar", b.Summary.AreasToImprove)
	d.bulletList("Evolución", b.Summary.Trend)
}

func (d *document) bulletList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	d.need(lineH * 2)
	d.font("B", 10, accent)
	d.pdf.CellFormat(0, lineH+1, d.tr(title), "", 1, "L", false, 0, "")
	d.font("", 10, black)
	for _, item := range items {
		d.pdf.SetX(marginMM + 3)
		d.pdf.MultiCell(0, lineH, d.tr("· "+item), "", "L", false)
	}
	d.pdf.Ln(1)
}

func (d *document) reportList(b Bundle) {
	d.sectionTitle("Informes · " + countLabel(len(b.Reports), "informe"))
	for _, r := range b.Reports {
		d.report(r)
	}
}

func (d *document) report(r *models.Report) {
	d.need(25)

	title := joinNonEmpty(" · ", formatDate(r.SeriesDate()), prefixed("vs ", r.Opponent), r.AuthorName)
	d.pdf.SetFillColor(lightFill.r, lightFill.g, lightFill.b)
	d.font("B", 10, black)
	d.pdf.CellFormat(d.contentWidth()-40, 6.5, d.tr(title), "", 0, "L", true, 0, "")
	d.font("B", 9, accent)
	d.pdf.CellFormat(40, 6.5, d.tr(recommendationLabels[r.Recommendation]), "", 1, "R", true, 0, "")

	meta := []string{}
	if r.MinutesObserved != nil {
		meta = append(meta, fmt.Sprintf("%d min observados", *r.MinutesObserved))
	}
	if r.Confidence != nil {
		meta = append(meta, fmt.Sprintf("confianza %d%%", *r.Confidence))
	}
	if overall, ok := r.Ratings.Overall(); ok {
		meta = append(meta, "media "+score(overall))
	}
	if r.Template != "" {
		meta = append(meta, "plantilla "+r.Template)
	}
	if len(meta) > 0 {
		d.font("I", 8, grey)
		d.pdf.CellFormat(0, 5, d.tr(strings.Join(meta, " · ")), "", 1, "L", false, 0, "")
	}

	for _, category := range r.Ratings.Categories() {
		metrics := r.Ratings[category]
		parts := make([]string, 0, len(metrics))
		for _, name := range slices.Sorted(maps.Keys(metrics)) {
			parts = append(parts, fmt.Sprintf("%s %s", name, score(metrics[name])))
		}
		d.font("B", 9, black)
		d.pdf.CellFormat(40, lineH, d.tr(truncate(category, 24)), "", 0, "L", false, 0, "")
		d.font("", 9, black)
		d.pdf.MultiCell(0, lineH, d.tr(strings.Join(parts, ", ")), "", "L", false)
	}

	if len(r.Traits) > 0 {
		d.font("I", 9, grey)
		d.pdf.MultiCell(0, lineH, d.tr("Rasgos: "+strings.Join(r.Traits, ", ")), "", "L", false)
	}
	if obs := strings.TrimSpace(r.Observations); obs != "" {
		d.font("", 9, black)
		d.pdf.MultiCell(0, lineH-0.5, d.tr(obs), "", "L", false)
	}
	d.pdf.Ln(3)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func prefixed(prefix, s string) string {
	if s == "" {
		return ""
	}
	return prefix + s
}

func formatDate(s string) string {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return s
	}
	return t.Format("02/01/2006")
}

func intText(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

func unit(v *int, u string) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d %s", *v, u)
}

func marketValue(keur *float64) string {
	if keur == nil {
		return ""
	}
	if *keur >= 1000 {
		return fmt.Sprintf("%.1f M€", *keur/1000)
	}
	return fmt.Sprintf("%.0f k€", *keur)
}

func score(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

func trendText(t stats.Trend) string {
	label, ok := trendLabels[t.Direction]
	if !ok {
		return "-"
	}
	if t.Direction == stats.TrendStable {
		return label
	}
	return fmt.Sprintf("%s (%+.1f)", label, t.Delta)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
