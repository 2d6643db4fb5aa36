// Package catalog resolves common object names and catalog designations
// to coordinates, grounded on
// original_source/services/catalog/catalog.py's CatalogDatabase (lookup
// by catalog_id/name/alias). The original backs this with SQLite; no
// SQLite driver appears anywhere in the retrieval pack (see DESIGN.md),
// so this is a static, in-memory table — stdlib-only, justified by the
// absence of a fitting ecosystem library rather than by the size of the
// data.
package catalog

import "strings"

// ObjectType mirrors original_source's ObjectType enum.
type ObjectType string

const (
	TypeStar             ObjectType = "star"
	TypeDoubleStar       ObjectType = "double_star"
	TypeOpenCluster      ObjectType = "open_cluster"
	TypeGlobularCluster  ObjectType = "globular_cluster"
	TypeNebula           ObjectType = "nebula"
	TypePlanetaryNebula  ObjectType = "planetary_nebula"
	TypeGalaxy           ObjectType = "galaxy"
	TypeSupernovaRemnant ObjectType = "supernova_remnant"
	TypeOther            ObjectType = "other"
)

// Object is a single catalog entry (J2000 coordinates).
type Object struct {
	CatalogID     string
	Name          string
	Type          ObjectType
	RAHours       float64
	DecDegrees    float64
	MagnitudeMag  float64
	SizeArcmin    float64
	Constellation string
	Aliases       []string
}

// Catalog resolves names/designations/aliases to Object, case-insensitive.
type Catalog struct {
	byKey map[string]*Object
}

// New builds a Catalog seeded with the default objects. Additional
// objects can be added with Add (e.g. loaded from a config file).
func New() *Catalog {
	c := &Catalog{byKey: make(map[string]*Object)}
	for _, obj := range defaultObjects {
		o := obj
		c.Add(&o)
	}
	return c
}

// Add indexes obj under its catalog ID, name, and every alias.
func (c *Catalog) Add(obj *Object) {
	c.index(obj.CatalogID, obj)
	if obj.Name != "" {
		c.index(obj.Name, obj)
	}
	for _, a := range obj.Aliases {
		c.index(a, obj)
	}
}

func (c *Catalog) index(key string, obj *Object) {
	if key == "" {
		return
	}
	c.byKey[normalize(key)] = obj
}

func normalize(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(strings.TrimSpace(s)), " "))
}

// ErrNotFound is returned by Resolve when no entry matches.
type ErrNotFound struct{ Query string }

func (e *ErrNotFound) Error() string { return "catalog: no object found matching " + e.Query }

// Resolve looks up query by catalog ID, common name, or alias.
func (c *Catalog) Resolve(query string) (*Object, error) {
	if obj, ok := c.byKey[normalize(query)]; ok {
		return obj, nil
	}
	return nil, &ErrNotFound{Query: query}
}

// defaultObjects is a small curated set spanning Messier objects and
// named stars, enough to exercise goto_object end to end without a
// database dependency.
var defaultObjects = []Object{
	{
		CatalogID: "M31", Name: "Andromeda Galaxy", Type: TypeGalaxy,
		RAHours: 0.7122222, DecDegrees: 41.26917, MagnitudeMag: 3.4, SizeArcmin: 178,
		Constellation: "Andromeda", Aliases: []string{"NGC 224", "Andromeda"},
	},
	{
		CatalogID: "M42", Name: "Orion Nebula", Type: TypeNebula,
		RAHours: 5.5880556, DecDegrees: -5.391111, MagnitudeMag: 4.0, SizeArcmin: 85,
		Constellation: "Orion", Aliases: []string{"NGC 1976", "Orion Nebula"},
	},
	{
		CatalogID: "M13", Name: "Hercules Cluster", Type: TypeGlobularCluster,
		RAHours: 16.694898, DecDegrees: 36.46131, MagnitudeMag: 5.8, SizeArcmin: 20,
		Constellation: "Hercules", Aliases: []string{"NGC 6205", "Great Hercules Cluster"},
	},
	{
		CatalogID: "M57", Name: "Ring Nebula", Type: TypePlanetaryNebula,
		RAHours: 18.885278, DecDegrees: 33.029167, MagnitudeMag: 8.8, SizeArcmin: 1.4,
		Constellation: "Lyra", Aliases: []string{"NGC 6720", "Ring Nebula"},
	},
	{
		CatalogID: "M45", Name: "Pleiades", Type: TypeOpenCluster,
		RAHours: 3.791167, DecDegrees: 24.1167, MagnitudeMag: 1.6, SizeArcmin: 110,
		Constellation: "Taurus", Aliases: []string{"Seven Sisters"},
	},
	{
		CatalogID: "HIP 11767", Name: "Polaris", Type: TypeStar,
		RAHours: 2.530195, DecDegrees: 89.264109, MagnitudeMag: 1.98,
		Constellation: "Ursa Minor", Aliases: []string{"North Star", "Alpha Ursae Minoris"},
	},
	{
		CatalogID: "HIP 91262", Name: "Vega", Type: TypeStar,
		RAHours: 18.615649, DecDegrees: 38.783692, MagnitudeMag: 0.03,
		Constellation: "Lyra", Aliases: []string{"Alpha Lyrae"},
	},
	{
		CatalogID: "HIP 32349", Name: "Sirius", Type: TypeDoubleStar,
		RAHours: 6.752481, DecDegrees: -16.716116, MagnitudeMag: -1.46,
		Constellation: "Canis Major", Aliases: []string{"Alpha Canis Majoris", "Dog Star"},
	},
}
