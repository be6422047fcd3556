package scene

import (
	"context"
	"math"

	"github.com/hostbridge/scene-bridge-go/capability"
)

// sceneInfoObjectCap bounds the object list in get_scene_info so the summary
// stays small for large scenes; get_object_info serves the detail.
const sceneInfoObjectCap = 10

type createObjectParams struct {
	Type     string `json:"type,omitempty" jsonschema:"enum=CUBE,enum=SPHERE,enum=CYLINDER,enum=PLANE,enum=CONE,enum=TORUS,enum=EMPTY,enum=CAMERA,enum=LIGHT"`
	Name     string `json:"name,omitempty"`
	Location *Vec3  `json:"location,omitempty"`
	Rotation *Vec3  `json:"rotation,omitempty"`
	Scale    *Vec3  `json:"scale,omitempty"`
}

type objectNameParams struct {
	Name string `json:"name"`
}

type modifyObjectParams struct {
	Name     string `json:"name"`
	Location *Vec3  `json:"location,omitempty"`
	Rotation *Vec3  `json:"rotation,omitempty"`
	Scale    *Vec3  `json:"scale,omitempty"`
	Visible  *bool  `json:"visible,omitempty"`
}

type setMaterialParams struct {
	ObjectName      string    `json:"object_name"`
	MaterialName    string    `json:"material_name,omitempty"`
	CreateIfMissing *bool     `json:"create_if_missing,omitempty"`
	Color           []float64 `json:"color,omitempty"`
}

type renderSceneParams struct {
	OutputPath  string `json:"output_path,omitempty"`
	ResolutionX int    `json:"resolution_x,omitempty"`
	ResolutionY int    `json:"resolution_y,omitempty"`
}

// objectSummary is the trimmed per-object entry in get_scene_info.
type objectSummary struct {
	Name     string     `json:"name"`
	Type     ObjectType `json:"type"`
	Location Vec3       `json:"location"`
}

// objectDetail is the full transform view shared by create, modify and info
// results.
type objectDetail struct {
	Name      string     `json:"name"`
	Type      ObjectType `json:"type"`
	Location  Vec3       `json:"location"`
	Rotation  Vec3       `json:"rotation"`
	Scale     Vec3       `json:"scale"`
	Visible   bool       `json:"visible"`
	Materials []string   `json:"materials,omitempty"`
	Mesh      *MeshStats `json:"mesh,omitempty"`
}

// Register installs the scene command set on the registry. All handlers
// mutate sc directly; the executor guarantees they run one at a time on the
// host tick.
func Register(reg *capability.Registry, sc *Scene) {
	for _, def := range []capability.Capability{
		capability.NewHandler("get_scene_info", sc.getSceneInfo,
			capability.WithDescription("Summarize the scene: object and material counts plus the first few objects.")),
		capability.NewHandler("get_object_info", sc.getObjectInfo,
			capability.WithDescription("Return the full transform, visibility, materials and mesh stats of one object.")),
		capability.NewHandler("create_object", sc.createObject,
			capability.WithDescription("Add a primitive to the scene. Colliding names get a numeric suffix.")),
		capability.NewHandler("modify_object", sc.modifyObject,
			capability.WithDescription("Update location, rotation, scale or visibility of an existing object.")),
		capability.NewHandler("delete_object", sc.deleteObject,
			capability.WithDescription("Remove an object from the scene.")),
		capability.NewHandler("set_material", sc.setMaterial,
			capability.WithDescription("Create or reuse a material and assign it to an object's first slot.")),
		capability.NewHandler("render_scene", sc.renderScene,
			capability.WithDescription("Render the scene at the current or given resolution.")),
	} {
		reg.Register(def)
	}
}

func (s *Scene) getSceneInfo(ctx context.Context, _ struct{}) (any, error) {
	objects := make([]objectSummary, 0, sceneInfoObjectCap)
	for _, obj := range s.objects {
		if len(objects) >= sceneInfoObjectCap {
			break
		}
		objects = append(objects, objectSummary{
			Name:     obj.Name,
			Type:     obj.Type,
			Location: roundVec(obj.Location),
		})
	}
	return map[string]any{
		"name":            s.Name,
		"object_count":    len(s.objects),
		"objects":         objects,
		"materials_count": s.MaterialCount(),
	}, nil
}

func (s *Scene) getObjectInfo(ctx context.Context, p objectNameParams) (any, error) {
	if p.Name == "" {
		return nil, capability.ValidationErrorf("name is required")
	}
	obj, err := s.Get(p.Name)
	if err != nil {
		return nil, err
	}
	return detailOf(obj), nil
}

func (s *Scene) createObject(ctx context.Context, p createObjectParams) (any, error) {
	typ := ObjectType(p.Type)
	if p.Type == "" {
		typ = TypeCube
	}
	scale := Vec3{1, 1, 1}
	if p.Scale != nil {
		scale = *p.Scale
	}
	obj, err := s.Create(typ, p.Name, deref(p.Location), deref(p.Rotation), scale)
	if err != nil {
		return nil, err
	}
	d := detailOf(obj)
	d.Mesh = nil // creation reports the transform only
	return d, nil
}

func (s *Scene) modifyObject(ctx context.Context, p modifyObjectParams) (any, error) {
	if p.Name == "" {
		return nil, capability.ValidationErrorf("name is required")
	}
	obj, err := s.Get(p.Name)
	if err != nil {
		return nil, err
	}
	if p.Location != nil {
		obj.Location = *p.Location
	}
	if p.Rotation != nil {
		obj.Rotation = *p.Rotation
	}
	if p.Scale != nil {
		obj.Scale = *p.Scale
	}
	if p.Visible != nil {
		obj.Visible = *p.Visible
	}
	d := detailOf(obj)
	d.Mesh = nil
	return d, nil
}

func (s *Scene) deleteObject(ctx context.Context, p objectNameParams) (any, error) {
	if p.Name == "" {
		return nil, capability.ValidationErrorf("name is required")
	}
	if err := s.Delete(p.Name); err != nil {
		return nil, err
	}
	return map[string]string{"deleted": p.Name}, nil
}

func (s *Scene) setMaterial(ctx context.Context, p setMaterialParams) (any, error) {
	if p.ObjectName == "" {
		return nil, capability.ValidationErrorf("object_name is required")
	}
	if n := len(p.Color); n != 0 && n != 3 && n != 4 {
		return nil, capability.ValidationErrorf("color must have 3 or 4 components, got %d", n)
	}
	createIfMissing := true
	if p.CreateIfMissing != nil {
		createIfMissing = *p.CreateIfMissing
	}
	mat, err := s.AssignMaterial(p.ObjectName, p.MaterialName, createIfMissing, p.Color)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"object":   p.ObjectName,
		"material": mat.Name,
		"color":    mat.BaseColor,
	}, nil
}

func (s *Scene) renderScene(ctx context.Context, p renderSceneParams) (any, error) {
	if p.ResolutionX < 0 || p.ResolutionY < 0 {
		return nil, capability.ValidationErrorf("resolution must not be negative")
	}
	s.SetResolution(p.ResolutionX, p.ResolutionY)

	x, y := s.Resolution()
	outputPath := p.OutputPath
	if outputPath == "" {
		outputPath = "[not saved]"
	}
	return map[string]any{
		"rendered":    true,
		"output_path": outputPath,
		"resolution":  [2]int{x, y},
	}, nil
}

func detailOf(obj *Object) *objectDetail {
	d := &objectDetail{
		Name:      obj.Name,
		Type:      obj.Type,
		Location:  obj.Location,
		Rotation:  obj.Rotation,
		Scale:     obj.Scale,
		Visible:   obj.Visible,
		Materials: obj.Materials,
	}
	if stats, ok := meshStats[obj.Type]; ok {
		d.Mesh = &stats
	}
	return d
}

func deref(v *Vec3) Vec3 {
	if v == nil {
		return Vec3{}
	}
	return *v
}

func roundVec(v Vec3) Vec3 {
	for i := range v {
		v[i] = math.Round(v[i]*100) / 100
	}
	return v
}
