package wire

import (
	"errors"
	"math"
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestPlayerSignal_RoundTrip(t *testing.T) {
	in := PlayerSignal{
		DesiredMov: [3]float32{1, 0, -2.5},
		DesiredRot: [2]float32{12, -4},
		DT:         0.016,
	}

	b, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "encoded size", len(b), playerSignalSize)

	var out PlayerSignal
	if err := out.UnmarshalBinary(b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "signal", out, in)
}

func TestPlayerSignal_UnmarshalErrors(t *testing.T) {
	good, _ := PlayerSignal{DT: 0.5}.MarshalBinary()

	tests := map[string]struct {
		input  []byte
		expErr error
	}{
		"empty":     {input: nil, expErr: ErrShortBuffer},
		"truncated": {input: good[:len(good)-1], expErr: ErrShortBuffer},
		"trailing":  {input: append(append([]byte{}, good...), 0), expErr: ErrTrailingBytes},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var s PlayerSignal
			err := s.UnmarshalBinary(tt.input)
			if !errors.Is(err, tt.expErr) {
				t.Errorf("error = %v, expected %v", err, tt.expErr)
			}
		})
	}
}

func TestPlayerSignal_Valid(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := map[string]struct {
		signal PlayerSignal
		exp    bool
	}{
		"typical":      {signal: PlayerSignal{DesiredMov: [3]float32{1, 0, 0}, DT: 0.016}, exp: true},
		"max dt":       {signal: PlayerSignal{DT: 1}, exp: true},
		"zero dt":      {signal: PlayerSignal{DT: 0}, exp: false},
		"negative dt":  {signal: PlayerSignal{DT: -0.1}, exp: false},
		"huge dt":      {signal: PlayerSignal{DT: 5}, exp: false},
		"nan movement": {signal: PlayerSignal{DesiredMov: [3]float32{nan, 0, 0}, DT: 0.016}, exp: false},
		"inf rotation": {signal: PlayerSignal{DesiredRot: [2]float32{0, inf}, DT: 0.016}, exp: false},
		"nan dt":       {signal: PlayerSignal{DT: nan}, exp: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, "valid", tt.signal.Valid(), tt.exp)
		})
	}
}

func newTestResponse(x float32, players []ResponseSignal, objects []NetworkObject) ResponseSignal {
	r := ResponseSignal{
		Translation:  [3]float32{x, 1, 2},
		CameraPos:    [3]float32{x, 6, -3},
		CameraTarget: [3]float32{x, 6, -2},
		Fwd:          [3]float32{0, 0, 1},
		Right:        [3]float32{-1, 0, 0},
		Players:      players,
		Objects:      objects,
	}
	r.Update()
	return r
}

func TestResponseSignal_RoundTrip(t *testing.T) {
	crate := NetworkObject{Position: [3]float32{1, 2, 3}, Rotation: [4]float32{0, 0, 0, 1}, Id: []byte("crate")}
	ball := NetworkObject{Position: [3]float32{-1, 0.5, 9}, Rotation: [4]float32{0.5, 0.5, 0.5, 0.5}, Id: []byte("Ball")}

	tests := map[string]struct {
		signal ResponseSignal
	}{
		"empty rosters": {
			signal: newTestResponse(0, nil, nil),
		},
		"one of each": {
			signal: newTestResponse(1, []ResponseSignal{newTestResponse(1, nil, nil)}, []NetworkObject{crate}),
		},
		"several players and objects": {
			signal: newTestResponse(2,
				[]ResponseSignal{newTestResponse(2, nil, nil), newTestResponse(3, nil, nil), newTestResponse(4, nil, nil)},
				[]NetworkObject{crate, ball},
			),
		},
		"object with empty id": {
			signal: newTestResponse(5, nil, []NetworkObject{{Rotation: [4]float32{0, 0, 0, 1}, Id: []byte{}}}),
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			b, err := tt.signal.MarshalBinary()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var out ResponseSignal
			if err := out.UnmarshalBinary(b); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "signal", out, tt.signal)
		})
	}
}

func TestResponseSignal_CountMismatch(t *testing.T) {
	r := newTestResponse(0, []ResponseSignal{newTestResponse(1, nil, nil)}, nil)
	r.PlayerCount = 3

	_, err := r.MarshalBinary()
	if !errors.Is(err, ErrCountMismatch) {
		t.Errorf("error = %v, expected %v", err, ErrCountMismatch)
	}
}

func TestResponseSignal_DeclaredCountTooLarge(t *testing.T) {
	r := newTestResponse(0, nil, nil)
	b, err := r.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Claim a million objects on an otherwise empty snapshot.
	byteOrder.PutUint32(b[4:], 1_000_000)

	var out ResponseSignal
	err = out.UnmarshalBinary(b)
	if !errors.Is(err, ErrShortBuffer) {
		t.Errorf("error = %v, expected %v", err, ErrShortBuffer)
	}
}

func TestResponseSignal_NestingLimit(t *testing.T) {
	r := newTestResponse(0, nil, nil)
	for i := 0; i < maxNesting+1; i++ {
		r = newTestResponse(float32(i), []ResponseSignal{r}, nil)
	}
	b, err := r.MarshalBinary()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out ResponseSignal
	err = out.UnmarshalBinary(b)
	if !errors.Is(err, ErrTooDeep) {
		t.Errorf("error = %v, expected %v", err, ErrTooDeep)
	}
}
