package scene

import (
	"fmt"
	"strings"

	"github.com/hostbridge/scene-bridge-go/capability"
)

// ObjectType enumerates the primitives the scene can hold.
type ObjectType string

const (
	TypeCube     ObjectType = "CUBE"
	TypeSphere   ObjectType = "SPHERE"
	TypeCylinder ObjectType = "CYLINDER"
	TypePlane    ObjectType = "PLANE"
	TypeCone     ObjectType = "CONE"
	TypeTorus    ObjectType = "TORUS"
	TypeEmpty    ObjectType = "EMPTY"
	TypeCamera   ObjectType = "CAMERA"
	TypeLight    ObjectType = "LIGHT"
)

// Vec3 is an xyz triple, serialized as a JSON array.
type Vec3 [3]float64

// MeshStats is the topology summary reported by get_object_info for mesh
// primitives. Counts match the default tessellation of each primitive.
type MeshStats struct {
	Vertices int `json:"vertices"`
	Edges    int `json:"edges"`
	Polygons int `json:"polygons"`
}

// Object is one scene entity.
type Object struct {
	Name      string
	Type      ObjectType
	Location  Vec3
	Rotation  Vec3
	Scale     Vec3
	Visible   bool
	Materials []string
}

// Material is a named surface definition. BaseColor is RGBA in 0..1. Texture
// is the asset id of the applied texture set, if any.
type Material struct {
	Name      string
	BaseColor [4]float64
	Texture   string
}

// Scene is the document model. Objects keep insertion order for listings.
//
// Not safe for concurrent use: the executor is the only caller.
type Scene struct {
	Name string

	objects   []*Object
	byName    map[string]*Object
	materials map[string]*Material
	matOrder  []string

	resolutionX int
	resolutionY int
}

// NewScene constructs an empty scene with default render settings.
func NewScene(name string) *Scene {
	if name == "" {
		name = "Scene"
	}
	return &Scene{
		Name:        name,
		byName:      make(map[string]*Object),
		materials:   make(map[string]*Material),
		resolutionX: 1920,
		resolutionY: 1080,
	}
}

// baseNames maps a primitive type to the default object name stem.
var baseNames = map[ObjectType]string{
	TypeCube:     "Cube",
	TypeSphere:   "Sphere",
	TypeCylinder: "Cylinder",
	TypePlane:    "Plane",
	TypeCone:     "Cone",
	TypeTorus:    "Torus",
	TypeEmpty:    "Empty",
	TypeCamera:   "Camera",
	TypeLight:    "Light",
}

// meshStats holds per-primitive default tessellation counts. Non-mesh types
// are absent.
var meshStats = map[ObjectType]MeshStats{
	TypeCube:     {Vertices: 8, Edges: 12, Polygons: 6},
	TypeSphere:   {Vertices: 482, Edges: 992, Polygons: 512},
	TypeCylinder: {Vertices: 64, Edges: 96, Polygons: 34},
	TypePlane:    {Vertices: 4, Edges: 4, Polygons: 1},
	TypeCone:     {Vertices: 33, Edges: 64, Polygons: 33},
	TypeTorus:    {Vertices: 576, Edges: 1152, Polygons: 576},
}

// Create adds a primitive of the given type. An empty name picks the type's
// default stem; name collisions get a numeric ".001" style suffix rather
// than failing.
func (s *Scene) Create(typ ObjectType, name string, location, rotation, scale Vec3) (*Object, error) {
	stem, ok := baseNames[typ]
	if !ok {
		return nil, capability.ValidationErrorf("unsupported object type: %s", typ)
	}
	if name == "" {
		name = stem
	}

	obj := &Object{
		Name:     s.uniqueName(name),
		Type:     typ,
		Location: location,
		Rotation: rotation,
		Scale:    scale,
		Visible:  true,
	}
	s.objects = append(s.objects, obj)
	s.byName[obj.Name] = obj
	return obj, nil
}

// uniqueName resolves a requested name against existing objects, suffixing
// ".001", ".002", ... on collision.
func (s *Scene) uniqueName(want string) string {
	if _, taken := s.byName[want]; !taken {
		return want
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%03d", want, i)
		if _, taken := s.byName[candidate]; !taken {
			return candidate
		}
	}
}

// Get returns the named object or a not-found execution error.
func (s *Scene) Get(name string) (*Object, error) {
	obj, ok := s.byName[name]
	if !ok {
		return nil, capability.ExecutionErrorf("Object '%s' not found", name)
	}
	return obj, nil
}

// Delete removes the named object.
func (s *Scene) Delete(name string) error {
	if _, ok := s.byName[name]; !ok {
		return capability.ExecutionErrorf("Object '%s' not found", name)
	}
	delete(s.byName, name)
	for i, obj := range s.objects {
		if obj.Name == name {
			s.objects = append(s.objects[:i], s.objects[i+1:]...)
			break
		}
	}
	return nil
}

// Objects returns the live object list in insertion order.
func (s *Scene) Objects() []*Object { return s.objects }

// MaterialCount reports the number of defined materials.
func (s *Scene) MaterialCount() int { return len(s.materials) }

// AssignMaterial attaches a material to an object's first slot, creating the
// material when allowed. An empty materialName derives "<object>_material".
func (s *Scene) AssignMaterial(objectName, materialName string, createIfMissing bool, color []float64) (*Material, error) {
	obj, err := s.Get(objectName)
	if err != nil {
		return nil, err
	}
	if _, mesh := meshStats[obj.Type]; !mesh {
		return nil, capability.ExecutionErrorf("Object %s cannot accept materials", objectName)
	}

	if materialName == "" {
		materialName = objectName + "_material"
		// derived names always create
		createIfMissing = true
	}

	mat, ok := s.materials[materialName]
	if !ok {
		if !createIfMissing {
			return nil, capability.ExecutionErrorf("material not found: %s", materialName)
		}
		mat = &Material{Name: materialName, BaseColor: [4]float64{0.8, 0.8, 0.8, 1}}
		s.materials[materialName] = mat
		s.matOrder = append(s.matOrder, materialName)
	}

	if len(color) >= 3 {
		mat.BaseColor = [4]float64{color[0], color[1], color[2], 1}
		if len(color) >= 4 {
			mat.BaseColor[3] = color[3]
		}
	}

	// first slot only, matching how hosts replace the active material
	if len(obj.Materials) == 0 {
		obj.Materials = append(obj.Materials, mat.Name)
	} else {
		obj.Materials[0] = mat.Name
	}
	return mat, nil
}

// textureChannels pairs a material channel with the map-name fragments that
// feed it. Order fixes which channel wins when a map matches several.
var textureChannels = []struct {
	channel   string
	fragments []string
}{
	{"base_color", []string{"diff", "color", "albedo"}},
	{"roughness", []string{"rough"}},
	{"metallic", []string{"metal"}},
	{"normal", []string{"nor"}},
	{"displacement", []string{"disp", "height"}},
}

// ApplyTexture builds a material named "<textureID>_material_<object>" from
// the given downloaded map names and assigns it to the object's first slot.
// An existing material of that name is replaced. Returns the material and the
// channels the maps were wired to; maps that match no channel are kept on the
// material but drive nothing.
func (s *Scene) ApplyTexture(objectName, textureID string, mapNames []string) (string, []string, error) {
	obj, err := s.Get(objectName)
	if err != nil {
		return "", nil, err
	}
	if _, mesh := meshStats[obj.Type]; !mesh {
		return "", nil, capability.ExecutionErrorf("Object %s cannot accept materials", objectName)
	}

	var channels []string
	for _, tc := range textureChannels {
		for _, name := range mapNames {
			if fragmentMatch(name, tc.fragments) {
				channels = append(channels, tc.channel)
				break
			}
		}
	}

	matName := fmt.Sprintf("%s_material_%s", textureID, objectName)
	mat, ok := s.materials[matName]
	if !ok {
		mat = &Material{Name: matName}
		s.materials[matName] = mat
		s.matOrder = append(s.matOrder, matName)
	}
	mat.BaseColor = [4]float64{0.8, 0.8, 0.8, 1}
	mat.Texture = textureID

	if len(obj.Materials) == 0 {
		obj.Materials = append(obj.Materials, mat.Name)
	} else {
		obj.Materials[0] = mat.Name
	}
	return mat.Name, channels, nil
}

func fragmentMatch(mapName string, fragments []string) bool {
	m := strings.ToLower(mapName)
	for _, f := range fragments {
		if strings.Contains(m, f) {
			return true
		}
	}
	return false
}

// Resolution reports the current render resolution.
func (s *Scene) Resolution() (x, y int) { return s.resolutionX, s.resolutionY }

// SetResolution updates render resolution; non-positive values are ignored.
func (s *Scene) SetResolution(x, y int) {
	if x > 0 {
		s.resolutionX = x
	}
	if y > 0 {
		s.resolutionY = y
	}
}
