package catalog

import (
	"errors"
	"fmt"
)

var wasteTypes = []Option{
	{Value: "biosanitario", Label: "Biosanitario"},
	{Value: "cortopunzante", Label: "Cortopunzante"},
	{Value: "anatomopatologico", Label: "Anatomopatológico"},
	{Value: "quimico", Label: "Químico"},
	{Value: "farmaceutico", Label: "Fármaco"},
	{Value: "reciclable", Label: "Reciclable"},
	{Value: "ordinario", Label: "Ordinario"},
}

// Catalog is the immutable set of entity descriptors.
type Catalog struct {
	entities []Entity
	bySlug   map[string]int
}

// New builds a catalog and checks its internal consistency.
func New(entities ...Entity) (*Catalog, error) {
	c := &Catalog{entities: entities, bySlug: make(map[string]int, len(entities))}
	for i, e := range entities {
		if e.Slug == "" || e.Table == "" {
			return nil, fmt.Errorf("catalog: entity %d missing slug or table", i)
		}
		if _, dup := c.bySlug[e.Slug]; dup {
			return nil, fmt.Errorf("catalog: duplicate slug %s", e.Slug)
		}
		c.bySlug[e.Slug] = i
	}
	for _, e := range entities {
		if _, ok := e.Field(e.Display); !ok {
			return nil, fmt.Errorf("catalog: %s display column %q is not a field", e.Slug, e.Display)
		}
		if e.DefaultSort != "" && !e.IsSortable(e.DefaultSort) {
			return nil, fmt.Errorf("catalog: %s default sort %q is not sortable", e.Slug, e.DefaultSort)
		}
		for _, f := range e.Fields {
			if f.Kind == KindReference {
				if _, ok := c.bySlug[f.Ref]; !ok {
					return nil, fmt.Errorf("catalog: %s.%s references unknown entity %q", e.Slug, f.Name, f.Ref)
				}
			}
			if f.Kind == KindSelect && len(f.Options) == 0 {
				return nil, fmt.Errorf("catalog: %s.%s has no options", e.Slug, f.Name)
			}
		}
	}
	return c, nil
}

// ErrUnknownEntity is returned for slugs outside the catalog.
var ErrUnknownEntity = errors.New("catalog: unknown entity")

// Lookup returns the entity with the given slug.
func (c *Catalog) Lookup(slug string) (Entity, error) {
	i, ok := c.bySlug[slug]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s", ErrUnknownEntity, slug)
	}
	return c.entities[i], nil
}

// All returns the entities in navigation order.
func (c *Catalog) All() []Entity {
	out := make([]Entity, len(c.entities))
	copy(out, c.entities)
	return out
}

// Default returns the hospital waste management catalog.
func Default() *Catalog {
	c, err := New(defaultEntities()...)
	if err != nil {
		panic(err)
	}
	return c
}

func defaultEntities() []Entity {
	return []Entity{
		{
			Slug: "departamentos", Table: "departamentos", Title: "Departamentos", Singular: "Departamento",
			Display: "nombre", DefaultSort: "nombre",
			Fields: []Field{
				{Name: "nombre", Label: "Nombre", Kind: KindText, Required: true, Searchable: true, Listed: true},
				{Name: "codigo", Label: "Código", Kind: KindText, Required: true, Searchable: true, Listed: true, Max: 20},
				{Name: "responsable", Label: "Responsable", Kind: KindText, Listed: true},
				{Name: "piso", Label: "Piso", Kind: KindText, Max: 20},
			},
		},
		{
			Slug: "capacitaciones", Table: "capacitaciones", Title: "Capacitaciones", Singular: "Capacitación",
			Display: "titulo", DefaultSort: "fecha",
			Fields: []Field{
				{Name: "titulo", Label: "Título", Kind: KindText, Required: true, Searchable: true, Listed: true},
				{Name: "fecha", Label: "Fecha", Kind: KindDate, Required: true, Listed: true},
				{Name: "instructor", Label: "Instructor", Kind: KindText, Searchable: true, Listed: true},
				{Name: "departamento_id", Label: "Departamento", Kind: KindReference, Ref: "departamentos", Listed: true},
				{Name: "duracion_horas", Label: "Duración (horas)", Kind: KindNumber},
				{Name: "descripcion", Label: "Descripción", Kind: KindLongText},
			},
		},
		{
			Slug: "participantes", Table: "participantes", Title: "Participantes", Singular: "Participante",
			Display: "nombre", DefaultSort: "nombre",
			Fields: []Field{
				{Name: "nombre", Label: "Nombre", Kind: KindText, Required: true, Searchable: true, Listed: true},
				{Name: "documento", Label: "Documento", Kind: KindText, Required: true, Searchable: true, Listed: true, Max: 30},
				{Name: "capacitacion_id", Label: "Capacitación", Kind: KindReference, Ref: "capacitaciones", Required: true, Listed: true},
				{Name: "departamento_id", Label: "Departamento", Kind: KindReference, Ref: "departamentos"},
				{Name: "aprobado", Label: "Aprobado", Kind: KindBool, Listed: true},
			},
		},
		{
			Slug: "gestores", Table: "gestores_externos", Title: "Gestores externos", Singular: "Gestor externo",
			Display: "razon_social", DefaultSort: "razon_social",
			Fields: []Field{
				{Name: "razon_social", Label: "Razón social", Kind: KindText, Required: true, Searchable: true, Listed: true},
				{Name: "nit", Label: "NIT", Kind: KindText, Required: true, Searchable: true, Listed: true, Max: 20},
				{Name: "licencia_ambiental", Label: "Licencia ambiental", Kind: KindText, Listed: true},
				{Name: "telefono", Label: "Teléfono", Kind: KindText, Max: 30},
				{Name: "email", Label: "Correo", Kind: KindEmail},
				{Name: "activo", Label: "Activo", Kind: KindBool, Listed: true},
			},
		},
		{
			Slug: "entregas", Table: "entregas", Title: "Entregas de residuos", Singular: "Entrega",
			Display: "codigo", DefaultSort: "fecha",
			Fields: []Field{
				{Name: "codigo", Label: "Código", Kind: KindText, Required: true, Searchable: true, Listed: true, Max: 30},
				{Name: "fecha", Label: "Fecha", Kind: KindDate, Required: true, Listed: true},
				{Name: "departamento_id", Label: "Departamento", Kind: KindReference, Ref: "departamentos", Required: true, Listed: true},
				{Name: "gestor_id", Label: "Gestor externo", Kind: KindReference, Ref: "gestores", Listed: true},
				{Name: "tipo_residuo", Label: "Tipo de residuo", Kind: KindSelect, Options: wasteTypes, Required: true, Listed: true},
				{Name: "cantidad_kg", Label: "Cantidad (kg)", Kind: KindNumber, Required: true, Listed: true},
				{Name: "estado", Label: "Estado", Kind: KindSelect, Required: true, Listed: true, Options: []Option{
					{Value: "pendiente", Label: "Pendiente"},
					{Value: "recolectada", Label: "Recolectada"},
					{Value: "entregada", Label: "Entregada al gestor"},
				}},
				{Name: "observaciones", Label: "Observaciones", Kind: KindLongText},
			},
		},
		{
			Slug: "etiquetas", Table: "etiquetas", Title: "Etiquetas", Singular: "Etiqueta",
			Display: "codigo", DefaultSort: "codigo",
			Fields: []Field{
				{Name: "codigo", Label: "Código", Kind: KindText, Required: true, Searchable: true, Listed: true, Max: 30},
				{Name: "tipo_residuo", Label: "Tipo de residuo", Kind: KindSelect, Options: wasteTypes, Required: true, Listed: true},
				{Name: "color", Label: "Color de bolsa", Kind: KindSelect, Required: true, Listed: true, Options: []Option{
					{Value: "rojo", Label: "Rojo"},
					{Value: "verde", Label: "Verde"},
					{Value: "gris", Label: "Gris"},
					{Value: "blanco", Label: "Blanco"},
					{Value: "negro", Label: "Negro"},
				}},
				{Name: "departamento_id", Label: "Departamento", Kind: KindReference, Ref: "departamentos", Listed: true},
				{Name: "fecha_emision", Label: "Fecha de emisión", Kind: KindDate},
			},
		},
		{
			Slug: "pesajes", Table: "pesajes", Title: "Pesajes", Singular: "Pesaje",
			Display: "fecha", DefaultSort: "fecha",
			Fields: []Field{
				{Name: "fecha", Label: "Fecha", Kind: KindDate, Required: true, Listed: true},
				{Name: "entrega_id", Label: "Entrega", Kind: KindReference, Ref: "entregas", Listed: true},
				{Name: "etiqueta_id", Label: "Etiqueta", Kind: KindReference, Ref: "etiquetas"},
				{Name: "tipo_residuo", Label: "Tipo de residuo", Kind: KindSelect, Options: wasteTypes, Required: true, Listed: true},
				{Name: "peso_kg", Label: "Peso (kg)", Kind: KindNumber, Required: true, Listed: true},
				{Name: "responsable", Label: "Responsable", Kind: KindText, Searchable: true, Listed: true},
			},
		},
		{
			Slug: "normativas", Table: "normativas", Title: "Normativas", Singular: "Normativa",
			Display: "codigo", DefaultSort: "codigo",
			Fields: []Field{
				{Name: "codigo", Label: "Código", Kind: KindText, Required: true, Searchable: true, Listed: true, Max: 50},
				{Name: "titulo", Label: "Título", Kind: KindText, Required: true, Searchable: true, Listed: true},
				{Name: "entidad_emisora", Label: "Entidad emisora", Kind: KindText, Listed: true},
				{Name: "fecha_publicacion", Label: "Fecha de publicación", Kind: KindDate},
				{Name: "vigente", Label: "Vigente", Kind: KindBool, Listed: true},
				{Name: "descripcion", Label: "Descripción", Kind: KindLongText},
			},
		},
		{
			Slug: "reportes", Table: "reportes", Title: "Reportes", Singular: "Reporte",
			Display: "titulo", DefaultSort: "periodo", Printable: true,
			Fields: []Field{
				{Name: "titulo", Label: "Título", Kind: KindText, Required: true, Searchable: true, Listed: true},
				{Name: "periodo", Label: "Periodo (AAAA-MM)", Kind: KindText, Required: true, Listed: true, Rule: "datetime=2006-01"},
				{Name: "tipo", Label: "Tipo", Kind: KindSelect, Required: true, Listed: true, Options: []Option{
					{Value: "mensual", Label: "Mensual"},
					{Value: "trimestral", Label: "Trimestral"},
					{Value: "anual", Label: "Anual"},
					{Value: "incidente", Label: "Incidente"},
				}},
				{Name: "generado_por", Label: "Elaborado por", Kind: KindText, Listed: true},
				{Name: "contenido", Label: "Contenido", Kind: KindLongText, Required: true, Max: 20000},
			},
		},
		{
			Slug: "incidentes", Table: "incidentes", Title: "Incidentes", Singular: "Incidente",
			Display: "titulo", DefaultSort: "fecha",
			Fields: []Field{
				{Name: "titulo", Label: "Título", Kind: KindText, Required: true, Searchable: true, Listed: true},
				{Name: "fecha", Label: "Fecha", Kind: KindDate, Required: true, Listed: true},
				{Name: "departamento_id", Label: "Departamento", Kind: KindReference, Ref: "departamentos", Listed: true},
				{Name: "severidad", Label: "Severidad", Kind: KindSelect, Required: true, Listed: true, Options: []Option{
					{Value: "baja", Label: "Baja"},
					{Value: "media", Label: "Media"},
					{Value: "alta", Label: "Alta"},
					{Value: "critica", Label: "Crítica"},
				}},
				{Name: "estado", Label: "Estado", Kind: KindSelect, Required: true, Listed: true, Options: []Option{
					{Value: "abierto", Label: "Abierto"},
					{Value: "en_investigacion", Label: "En investigación"},
					{Value: "cerrado", Label: "Cerrado"},
				}},
				{Name: "descripcion", Label: "Descripción", Kind: KindLongText, Required: true},
				{Name: "acciones", Label: "Acciones correctivas", Kind: KindLongText},
			},
		},
	}
}
