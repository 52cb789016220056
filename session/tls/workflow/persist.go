package workflow

import (
	"encoding/hex"
	"io"
	"strconv"
	"strings"

	"tlsflow/session/tls/alert"
	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"
	"tlsflow/session/tls/message"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// The trace document. Configured messages keep the fields a user sets by
// hand; observed messages are kept as raw bytes for inspection only and
// are not restored.
type document struct {
	Description string      `yaml:"description,omitempty"`
	Perspective string      `yaml:"perspective"`
	Actions     []actionDoc `yaml:"actions"`
}

type actionDoc struct {
	Kind     string       `yaml:"kind"`
	Executed bool         `yaml:"executed,omitempty"`
	Messages []messageDoc `yaml:"messages,omitempty"`
	Observed []messageDoc `yaml:"observed,omitempty"`
	// Mismatched marks a Receive that got something else than planned.
	Mismatched bool `yaml:"mismatched,omitempty"`

	Suite   string `yaml:"suite,omitempty"`
	Version string `yaml:"version,omitempty"`
	Role    string `yaml:"role,omitempty"`
	// Value is hex: a random or a pre-master secret.
	Value string `yaml:"value,omitempty"`

	// Renegotiate only.
	Actions []actionDoc `yaml:"actions,omitempty"`
}

type messageDoc struct {
	Type   string    `yaml:"type"`
	Skip   bool      `yaml:"skip,omitempty"`
	Modify bool      `yaml:"modify,omitempty"`
	Raw    string    `yaml:"raw,omitempty"`
	Data   string    `yaml:"data,omitempty"`
	Alert  *alertDoc `yaml:"alert,omitempty"`
}

type alertDoc struct {
	Level       uint8 `yaml:"level"`
	Description uint8 `yaml:"description"`
}

// Save writes t as a YAML document.
func Save(w io.Writer, t *Trace) error {
	doc := document{
		Description: t.Description,
		Perspective: t.Perspective.String(),
		Actions:     encodeActions(t.Actions),
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encoding trace")
	}
	return errors.Wrap(enc.Close(), "encoding trace")
}

// Load reads a document written by Save, or by hand.
func Load(r io.Reader) (*Trace, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrapf(common.ErrConfiguration, "decoding trace: %s", err)
	}

	actions, err := decodeActions(doc.Actions)
	if err != nil {
		return nil, err
	}

	t := NewTrace(actions...)
	t.Description = doc.Description
	if doc.Perspective != "" {
		role, ok := common.ParseRole(doc.Perspective)
		if !ok {
			return nil, errors.Wrapf(common.ErrConfiguration, "unknown perspective %q", doc.Perspective)
		}
		t.Perspective = role
	}
	return t, nil
}

func encodeActions(actions []Action) []actionDoc {
	docs := make([]actionDoc, 0, len(actions))
	for _, a := range actions {
		d := actionDoc{Kind: a.Kind().String(), Executed: a.Executed()}
		switch a := a.(type) {
		case *Send:
			d.Messages = encodeMessages(a.Messages)
		case *Receive:
			d.Messages = encodeMessages(a.Expected)
			d.Observed = encodeMessages(a.Observed)
			d.Mismatched = a.Mismatched
		case *ChangeCipherSuite:
			d.Suite = a.Suite.String()
		case *ChangeRandom:
			d.Role = a.Role.String()
			d.Value = hex.EncodeToString(a.Random)
		case *ChangeProtocolVersion:
			d.Version = a.Version.String()
		case *ChangePreMasterSecret:
			d.Value = hex.EncodeToString(a.Secret)
		case *Renegotiate:
			d.Actions = encodeActions(a.Actions)
		case *ForwardOnly:
			d.Role = a.From.String()
		}
		docs = append(docs, d)
	}
	return docs
}

func encodeMessages(ms []message.Message) []messageDoc {
	docs := make([]messageDoc, 0, len(ms))
	for _, m := range ms {
		base := m.Common()
		d := messageDoc{
			Type:   m.Type().String(),
			Skip:   base.Skip,
			Modify: base.Modify,
			Raw:    hex.EncodeToString(base.Raw),
		}
		switch m := m.(type) {
		case *message.ApplicationData:
			d.Data = hex.EncodeToString(m.Data.Value())
		case *message.Unknown:
			d.Data = hex.EncodeToString(m.Data.Value())
		case *message.Alert:
			if m.Level.IsSet() || m.Description.IsSet() {
				d.Alert = &alertDoc{Level: uint8(m.Level.Value()), Description: uint8(m.Description.Value())}
			}
		}
		docs = append(docs, d)
	}
	return docs
}

func decodeActions(docs []actionDoc) ([]Action, error) {
	actions := make([]Action, 0, len(docs))
	for i, d := range docs {
		a, err := decodeAction(d)
		if err != nil {
			return nil, errors.Wrapf(err, "action %d", i)
		}
		if d.Executed {
			a.status().state = Executed
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func decodeAction(d actionDoc) (Action, error) {
	kind, err := ParseKind(d.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindSend:
		ms, err := decodeMessages(d.Messages)
		if err != nil {
			return nil, err
		}
		return NewSend(ms...), nil

	case KindReceive:
		ms, err := decodeMessages(d.Messages)
		if err != nil {
			return nil, err
		}
		a := NewReceive(ms...)
		a.Mismatched = d.Mismatched
		return a, nil

	case KindChangeCipherSuite:
		id, err := parseSuite(d.Suite)
		if err != nil {
			return nil, err
		}
		return &ChangeCipherSuite{Suite: id}, nil

	case KindChangeRandom:
		role, ok := common.ParseRole(d.Role)
		if !ok {
			return nil, errors.Wrapf(common.ErrConfiguration, "unknown role %q", d.Role)
		}
		random, err := parseHex(d.Value)
		if err != nil {
			return nil, err
		}
		return &ChangeRandom{Role: role, Random: random}, nil

	case KindChangeProtocolVersion:
		v, err := common.ParseVersion(d.Version)
		if err != nil {
			return nil, err
		}
		return &ChangeProtocolVersion{Version: v}, nil

	case KindChangePreMasterSecret:
		secret, err := parseHex(d.Value)
		if err != nil {
			return nil, err
		}
		return &ChangePreMasterSecret{Secret: secret}, nil

	case KindToggleEncryption:
		return &ToggleEncryption{}, nil

	case KindDeactivateEncryption:
		return &DeactivateEncryption{}, nil

	case KindRenegotiate:
		if d.Actions == nil {
			return &Renegotiate{}, nil
		}
		actions, err := decodeActions(d.Actions)
		if err != nil {
			return nil, err
		}
		return &Renegotiate{Actions: actions}, nil

	case KindForwardOnly:
		role, ok := common.ParseRole(d.Role)
		if !ok {
			return nil, errors.Wrapf(common.ErrConfiguration, "unknown role %q", d.Role)
		}
		return &ForwardOnly{From: role}, nil
	}

	return nil, errors.Wrapf(common.ErrConfiguration, "cannot load %s", kind)
}

func decodeMessages(docs []messageDoc) ([]message.Message, error) {
	ms := make([]message.Message, 0, len(docs))
	for _, d := range docs {
		t, err := message.ParseType(d.Type)
		if err != nil {
			return nil, err
		}
		m := message.MustNew(t)
		m.Common().Skip = d.Skip
		m.Common().Modify = d.Modify

		switch m := m.(type) {
		case *message.ApplicationData:
			if d.Data != "" {
				data, err := parseHex(d.Data)
				if err != nil {
					return nil, err
				}
				m.Data.Set(data)
			}
		case *message.Unknown:
			data, err := parseHex(d.Data)
			if err != nil {
				return nil, err
			}
			m.Data.Set(data)
		case *message.Alert:
			if d.Alert != nil {
				m.Level.Set(alert.Level(d.Alert.Level))
				m.Description.Set(alert.Description(d.Alert.Description))
			}
		}
		ms = append(ms, m)
	}
	return ms, nil
}

// parseSuite accepts a suite name or a hex code point like 0x002f.
func parseSuite(s string) (ciphersuite.ID, error) {
	if suite, ok := ciphersuite.ByName(s); ok {
		return suite.ID(), nil
	}
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		v, err := strconv.ParseUint(rest, 16, 16)
		if err == nil {
			return ciphersuite.IDFromUint16(uint16(v)), nil
		}
	}
	return ciphersuite.ID{}, errors.Wrapf(common.ErrConfiguration, "unknown cipher suite %q", s)
}

func parseHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(common.ErrConfiguration, "bad hex value: %s", err)
	}
	return b, nil
}
