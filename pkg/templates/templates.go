// Package templates holds the position-specific report templates: which
// categories and metrics a scout rates and the allowed score range.
package templates

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMinScore = 1
	DefaultMaxScore = 10
)

// Category is a group of related metrics.
type Category struct {
	Name    string   `json:"name" yaml:"name"`
	Metrics []string `json:"metrics" yaml:"metrics"`
}

// Template describes the ratings expected for one playing position.
type Template struct {
	Name       string     `json:"name" yaml:"name"`
	MinScore   float64    `json:"min_score" yaml:"min_score"`
	MaxScore   float64    `json:"max_score" yaml:"max_score"`
	Categories []Category `json:"categories" yaml:"categories"`
}

// Category returns the named category, matching case-insensitively.
func (t *Template) Category(name string) (*Category, bool) {
	for i := range t.Categories {
		if strings.EqualFold(t.Categories[i].Name, name) {
			return &t.Categories[i], true
		}
	}
	return nil, false
}

// Allows reports whether metric may be scored under category. A category may
// also be scored as a whole, with the metric named after the category.
func (t *Template) Allows(category, metric string) bool {
	c, ok := t.Category(category)
	if !ok {
		return false
	}
	if strings.EqualFold(metric, c.Name) {
		return true
	}
	for _, m := range c.Metrics {
		if strings.EqualFold(m, metric) {
			return true
		}
	}
	return false
}

// InRange reports whether score is a finite value inside the template range.
func (t *Template) InRange(score float64) bool {
	return InRange(score, t.MinScore, t.MaxScore)
}

// InRange reports whether score is finite and within [lo, hi].
func InRange(score, lo, hi float64) bool {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return false
	}
	return score >= lo && score <= hi
}

func (t *Template) normalize() error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return fmt.Errorf("template without name")
	}
	if t.MinScore == 0 && t.MaxScore == 0 {
		t.MinScore, t.MaxScore = DefaultMinScore, DefaultMaxScore
	}
	if t.MinScore >= t.MaxScore {
		return fmt.Errorf("template %q: min_score must be below max_score", t.Name)
	}
	if len(t.Categories) == 0 {
		return fmt.Errorf("template %q: no categories", t.Name)
	}
	for _, c := range t.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("template %q: category without name", t.Name)
		}
	}
	return nil
}

// Registry is the set of templates in use. It is safe for concurrent use and
// can be reloaded from a YAML file while the server runs.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
	path      string
	logger    *zap.Logger
}

// NewRegistry returns a registry holding the built-in templates. When path is
// set, templates from that file replace built-ins of the same name.
func NewRegistry(path string, logger *zap.Logger) (*Registry, error) {
	r := &Registry{path: path, logger: logger.Named("templates")}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rebuilds the registry from the built-ins and the YAML file. On error
// the previous set stays active.
func (r *Registry) Reload() error {
	set := make(map[string]*Template)
	for _, t := range Defaults() {
		set[strings.ToLower(t.Name)] = t
	}

	if r.path != "" {
		loaded, err := LoadFile(r.path)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		for _, t := range loaded {
			set[strings.ToLower(t.Name)] = t
		}
		if len(loaded) > 0 {
			r.logger.Info("Loaded report templates", zap.String("path", r.path), zap.Int("count", len(loaded)))
		}
	}

	r.mu.Lock()
	r.templates = set
	r.mu.Unlock()
	return nil
}

// Get returns the named template, matching case-insensitively.
func (r *Registry) Get(name string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// List returns all templates sorted by name.
func (r *Registry) List() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type templateFile struct {
	Templates []*Template `yaml:"templates"`
}

// LoadFile parses a YAML template file of the form
//
//	templates:
//	  - name: Portero
//	    min_score: 1
//	    max_score: 10
//	    categories:
//	      - name: Paradas
//	        metrics: [Reflejos, Aéreos, 1v1]
func LoadFile(path string) ([]*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse templates file %s: %w", path, err)
	}
	for _, t := range f.Templates {
		if err := t.normalize(); err != nil {
			return nil, fmt.Errorf("invalid templates file %s: %w", path, err)
		}
	}
	return f.Templates, nil
}

// Defaults returns fresh copies of the built-in position templates.
func Defaults() []*Template {
	t := func(name string, cats ...Category) *Template {
		return &Template{Name: name, MinScore: DefaultMinScore, MaxScore: DefaultMaxScore, Categories: cats}
	}
	c := func(name string, metrics ...string) Category {
		return Category{Name: name, Metrics: metrics}
	}

	return []*Template{
		t("Portero",
			c("Juego con pies", "Pase corto", "Pase largo", "Decisiones bajo presión"),
			c("Paradas", "Reflejos", "Aéreos", "1v1"),
			c("Colocación", "Posicionamiento", "Salidas")),
		t("Central",
			c("Defensa", "Duelos", "Aéreos", "Interceptaciones", "Entradas"),
			c("Salida de balón", "Pase corto", "Pase largo", "Progresión"),
			c("Concentración", "Errores", "Coberturas")),
		t("Lateral",
			c("Defensa", "Duelos", "Aéreos", "Interceptaciones"),
			c("Ataque", "Centros", "Progresión", "Aportación ofensiva"),
			c("Físico", "Resistencia", "Velocidad")),
		t("Mediocentro defensivo",
			c("Defensa", "Coberturas", "Intercepciones", "Duelos"),
			c("Construcción", "Pase corto", "Cambio de orientación", "Lectura"),
			c("Transición", "Posicionamiento", "Ritmo sin balón")),
		t("Mediocentro",
			c("Creación", "Pase clave", "Progresión", "Conducción"),
			c("Organización", "Ritmo", "Visión", "Perfilado"),
			c("Defensa", "Presión", "Recuperación")),
		t("Extremo",
			c("1v1", "Regate", "Aceleración"),
			c("Centro/Asistencia", "Centros", "Decisión en último tercio"),
			c("Finalización", "Tiro", "Desmarque segundo palo")),
		t("Delantero",
			c("Área", "Desmarques", "Definición", "Juego de espaldas"),
			c("Asociación", "Descargas", "Paredes"),
			c("Presión", "Primer esfuerzo", "Orientación presión")),
	}
}
