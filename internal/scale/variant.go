package scale

// GATT layout of the Primary variant.
const (
	PrimaryService  = "0000ffe0-0000-1000-8000-00805f9b34fb"
	PrimaryNotify   = "0000ffe1-0000-1000-8000-00805f9b34fb"
	PrimaryIndicate = "0000ffe2-0000-1000-8000-00805f9b34fb"
	PrimaryWrite    = "0000ffe3-0000-1000-8000-00805f9b34fb"
	PrimaryConfig   = "0000ffe4-0000-1000-8000-00805f9b34fb"
	PrimaryAux      = "0000ffe5-0000-1000-8000-00805f9b34fb"
)

// GATT layout of the Alternative variant.
const (
	AlternativeService = "0000fff0-0000-1000-8000-00805f9b34fb"
	AlternativeNotify  = "0000fff1-0000-1000-8000-00805f9b34fb"
	AlternativeWrite   = "0000fff2-0000-1000-8000-00805f9b34fb"
)

// Variant is one of the two incompatible GATT layouts Renpho scales use.
type Variant int

const (
	Primary Variant = iota
	Alternative
)

func (v Variant) String() string {
	switch v {
	case Primary:
		return "primary"
	case Alternative:
		return "alternative"
	default:
		return "unknown"
	}
}

// endpoint addresses one characteristic.
type endpoint struct {
	service string
	char    string
}

// layout is the set of characteristics a variant uses.
type layout struct {
	notify   endpoint
	indicate endpoint // zero for Alternative
	write    endpoint
	timeSync endpoint
}

func (v Variant) layout() layout {
	if v == Alternative {
		return layout{
			notify:   endpoint{AlternativeService, AlternativeNotify},
			write:    endpoint{AlternativeService, AlternativeWrite},
			timeSync: endpoint{AlternativeService, AlternativeWrite},
		}
	}
	return layout{
		notify:   endpoint{PrimaryService, PrimaryNotify},
		indicate: endpoint{PrimaryService, PrimaryIndicate},
		write:    endpoint{PrimaryService, PrimaryWrite},
		timeSync: endpoint{PrimaryService, PrimaryConfig},
	}
}

// weightLayout gives the byte offsets of a weight frame. Frames with
// protocol type 0xff put the done flag before the weight.
type weightLayout struct {
	done      int
	doneState byte
	weight    int
	resist    int
}

func weightLayoutFor(protocolType byte) weightLayout {
	if protocolType == 0xff {
		return weightLayout{done: 4, doneState: 2, weight: 5, resist: 7}
	}
	return weightLayout{done: 5, doneState: 1, weight: 3, resist: 6}
}

// minLen is the shortest frame holding every field of the layout.
func (l weightLayout) minLen() int {
	return max(l.done, l.weight+1, l.resist+3) + 1
}
