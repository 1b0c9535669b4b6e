package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Wire format between the bridge and the FFB controller.
//
// Outbound telemetry is a single datagram of "key=value;" pairs; array
// values join their elements with '~'. None of the three delimiters is
// escaped, so telemetry values must not contain '=', ';' or '~'. An
// aircraft name containing ';' would corrupt the datagram; existing
// controllers depend on the raw format, so it stays as is.
//
// Inbound commands are "TYPE:PAYLOAD" with TYPE one of AXIS, OVERRIDE or
// SUBSCRIBE. The first colon is the separator; later colons belong to the
// payload (dataref paths contain none, but URLs in future fields might).

// Command is one decoded inbound datagram.
type Command interface {
	commandType() string
}

// AxisValue is a single axis assignment from an AXIS command.
type AxisValue struct {
	Key   string
	Value float64
}

// AxisCommand updates override axis positions.
type AxisCommand struct {
	Values []AxisValue
}

// OverrideTarget selects which control-axis group an OVERRIDE command
// toggles.
type OverrideTarget int

const (
	OverrideJoystick OverrideTarget = iota
	OverridePedals
	OverrideCollective
)

func (t OverrideTarget) String() string {
	switch t {
	case OverrideJoystick:
		return "joystick"
	case OverridePedals:
		return "pedals"
	case OverrideCollective:
		return "collective"
	}
	return "unknown"
}

// OverrideCommand enables or disables one override flag.
type OverrideCommand struct {
	Target  OverrideTarget
	Enabled bool
}

// SubscribeCommand registers a new telemetry data point at runtime.
type SubscribeCommand struct {
	DataRef    string
	Tag        string
	Kind       DataRefKind
	Precision  int
	Conversion float64
}

func (AxisCommand) commandType() string      { return "AXIS" }
func (OverrideCommand) commandType() string  { return "OVERRIDE" }
func (SubscribeCommand) commandType() string { return "SUBSCRIBE" }

// EncodeTelemetry renders a snapshot as the outbound datagram payload.
func EncodeTelemetry(snapshot map[string]string) []byte {
	var b strings.Builder
	for key, value := range snapshot {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
		b.WriteByte(';')
	}
	return []byte(b.String())
}

// DecodeCommand parses one inbound datagram. A malformed datagram yields
// an error and no state is touched; numeric parse failures inside an AXIS
// payload skip only the offending pair.
func DecodeCommand(data []byte) (Command, error) {
	text := strings.TrimRight(string(data), "\r\n")
	typ, payload, found := strings.Cut(text, ":")
	if !found {
		return nil, fmt.Errorf("missing type separator in %q", text)
	}

	switch typ {
	case "AXIS":
		return decodeAxis(payload)
	case "OVERRIDE":
		return decodeOverride(payload)
	case "SUBSCRIBE":
		return decodeSubscribe(payload)
	}
	return nil, fmt.Errorf("unknown command type %q", typ)
}

func decodeAxis(payload string) (Command, error) {
	cmd := AxisCommand{}
	for _, pair := range strings.Split(payload, ",") {
		key, raw, found := strings.Cut(pair, "=")
		if !found || key == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			slog.Warn("skipping unparsable axis value", "pair", pair)
			continue
		}
		cmd.Values = append(cmd.Values, AxisValue{Key: key, Value: value})
	}
	if len(cmd.Values) == 0 {
		return nil, fmt.Errorf("axis payload %q has no usable pairs", payload)
	}
	return cmd, nil
}

func decodeOverride(payload string) (Command, error) {
	keyword, raw, found := strings.Cut(payload, "=")
	if !found {
		return nil, fmt.Errorf("override payload %q has no '='", payload)
	}

	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("override value %q: %w", raw, err)
	}

	var target OverrideTarget
	switch keyword {
	case "joystick":
		target = OverrideJoystick
	case "pedals":
		target = OverridePedals
	case "collective":
		target = OverrideCollective
	default:
		return nil, fmt.Errorf("unknown override keyword %q", keyword)
	}
	return OverrideCommand{Target: target, Enabled: enabled}, nil
}

func decodeSubscribe(payload string) (Command, error) {
	params := map[string]string{}
	for _, pair := range strings.Split(payload, ",") {
		key, value, found := strings.Cut(pair, "=")
		if found && key != "" {
			params[key] = value
		}
	}

	dataref := params["dataref"]
	tag := params["tag"]
	if dataref == "" || tag == "" {
		return nil, fmt.Errorf("subscribe payload %q missing dataref or tag", payload)
	}

	kind, ok := ParseDataRefKind(params["type"])
	if !ok {
		return nil, fmt.Errorf("subscribe payload %q has unsupported type %q", payload, params["type"])
	}

	cmd := SubscribeCommand{
		DataRef:    dataref,
		Tag:        tag,
		Kind:       kind,
		Precision:  defaultPrecision,
		Conversion: noConversion,
	}

	if raw, ok := params["precision"]; ok {
		if p, err := strconv.Atoi(raw); err == nil && p >= 0 {
			cmd.Precision = p
		} else {
			slog.Warn("ignoring bad subscribe precision", "value", raw)
		}
	}
	if raw, ok := params["conversion"]; ok {
		if c, err := strconv.ParseFloat(raw, 64); err == nil {
			cmd.Conversion = c
		} else {
			slog.Warn("ignoring bad subscribe conversion", "value", raw)
		}
	}
	return cmd, nil
}
