package worldmap

// Sighting records where an object was best observed. Area is the bounding
// box area of that observation; the largest-area sighting is assumed the most
// reliable, so writes never shrink it.
type Sighting struct {
	Viewpoint string  `json:"viewpoint"`
	Area      float64 `json:"area"`
}

// Memory maps room → object label → best sighting. It serializes as plain
// JSON so session state can persist it between turns.
type Memory struct {
	Rooms map[string]map[string]Sighting `json:"rooms"`
}

func NewMemory() *Memory {
	return &Memory{Rooms: map[string]map[string]Sighting{}}
}

// Write stores (viewpoint, area) for label in room unless an entry with a
// larger or equal area already exists.
func (m *Memory) Write(room, viewpoint, label string, area float64) {
	if m.Rooms == nil {
		m.Rooms = map[string]map[string]Sighting{}
	}
	byLabel, ok := m.Rooms[room]
	if !ok {
		byLabel = map[string]Sighting{}
		m.Rooms[room] = byLabel
	}
	if prev, ok := byLabel[label]; ok && prev.Area >= area {
		return
	}
	byLabel[label] = Sighting{Viewpoint: viewpoint, Area: area}
}

// WriteFrame batches the detections of one frame observed from viewpoint.
func (m *Memory) WriteFrame(room, viewpoint string, detections []Detection) {
	for _, d := range detections {
		if d.Label == "" {
			continue
		}
		m.Write(room, viewpoint, d.Label, d.Area)
	}
}

// WriteDrop records an object leaving the inventory: its last mask area
// becomes the remembered observation at the drop position.
func (m *Memory) WriteDrop(room, viewpoint, label string, lastMaskArea float64) {
	m.Write(room, viewpoint, label, lastMaskArea)
}

// Read returns the best-known sighting of label in room.
func (m *Memory) Read(room, label string) (Sighting, bool) {
	byLabel, ok := m.Rooms[room]
	if !ok {
		return Sighting{}, false
	}
	s, ok := byLabel[label]
	return s, ok
}

// ReadAnywhere scans every room for label; when several rooms remember it,
// the largest-area sighting wins.
func (m *Memory) ReadAnywhere(label string) (room string, s Sighting, ok bool) {
	for r, byLabel := range m.Rooms {
		cand, found := byLabel[label]
		if !found {
			continue
		}
		if !ok || cand.Area > s.Area {
			room, s, ok = r, cand, true
		}
	}
	return room, s, ok
}
