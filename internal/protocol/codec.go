package protocol

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Frame is the unit exchanged with the relay server. Relay frames carry an
// encoded negotiation Message in Body.
type Frame struct {
	Kind  FrameKind
	From  string
	To    string
	Body  []byte
	Error string
	Peers []string
}

func EncodeFrame(f Frame) ([]byte, error) {
	if f.Kind == "" {
		return nil, fmt.Errorf("%w: frame without kind", ErrMalformed)
	}

	fields := map[string]any{"kind": string(f.Kind)}
	if f.From != "" {
		fields["from"] = f.From
	}
	if f.To != "" {
		fields["to"] = f.To
	}
	if len(f.Body) > 0 {
		fields["body"] = string(f.Body)
	}
	if f.Error != "" {
		fields["error"] = f.Error
	}
	if f.Peers != nil {
		peers := make([]any, 0, len(f.Peers))
		for _, p := range f.Peers {
			peers = append(peers, p)
		}
		fields["peers"] = peers
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("building %s frame: %w", f.Kind, err)
	}
	return proto.Marshal(s)
}

func DecodeFrame(data []byte) (Frame, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	fields := s.GetFields()
	f := Frame{
		Kind:  FrameKind(fields["kind"].GetStringValue()),
		From:  fields["from"].GetStringValue(),
		To:    fields["to"].GetStringValue(),
		Error: fields["error"].GetStringValue(),
	}
	if f.Kind == "" {
		return Frame{}, fmt.Errorf("%w: frame without kind", ErrMalformed)
	}
	if body := fields["body"].GetStringValue(); body != "" {
		f.Body = []byte(body)
	}
	if list := fields["peers"].GetListValue(); list != nil {
		f.Peers = make([]string, 0, len(list.GetValues()))
		for _, v := range list.GetValues() {
			f.Peers = append(f.Peers, v.GetStringValue())
		}
	}
	return f, nil
}
