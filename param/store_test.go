package param_test

import (
	"reflect"
	"testing"

	"github.com/robertof/go-restclient-exporter/param"
)

func TestStore_CreateAndAccess(t *testing.T) {
	s := param.NewStore()

	temp, err := s.Create("TEMP", param.KindFloat)
	if err != nil {
		t.Fatalf("Create(TEMP): %v", err)
	}

	fans, err := s.Create("FANS", param.KindInt)
	if err != nil {
		t.Fatalf("Create(FANS): %v", err)
	}

	if again, err := s.Create("TEMP", param.KindFloat); err != nil || again != temp {
		t.Fatalf("Create(TEMP) twice: got %d, %v, wanted %d", again, err, temp)
	}

	if _, err := s.Create("TEMP", param.KindInt); err == nil {
		t.Fatalf("Create(TEMP) with a different kind: got no error")
	}

	if err := s.SetFloat(0, temp, 21.5); err != nil {
		t.Fatal(err)
	}

	for address, v := range []int{3, 1, 2} {
		if err := s.SetInt(address, fans, v); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.SetInt(0, temp, 1); err == nil {
		t.Fatalf("SetInt on a float entry: got no error")
	}

	if err := s.SetConnected(1, fans, true); err != nil {
		t.Fatal(err)
	}

	got := s.Snapshot()
	want := []param.Value{
		{Name: "TEMP", Index: temp, Address: 0, Kind: param.KindFloat, Float: 21.5},
		{Name: "FANS", Index: fans, Address: 0, Kind: param.KindInt, Int: 3},
		{Name: "FANS", Index: fans, Address: 1, Kind: param.KindInt, Int: 1, Connected: true},
		{Name: "FANS", Index: fans, Address: 2, Kind: param.KindInt, Int: 2},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Snapshot(): got %+v, wanted %+v", got, want)
	}

	if index, ok := s.Find("FANS"); !ok || index != fans {
		t.Fatalf("Find(FANS): got %d, %v", index, ok)
	}

	if s.Len() != 2 || s.Name(fans) != "FANS" || s.Kind(temp) != param.KindFloat {
		t.Fatalf("Len/Name/Kind: got %d, %q, %v", s.Len(), s.Name(fans), s.Kind(temp))
	}
}

func TestStore_Errors(t *testing.T) {
	s := param.NewStore()

	if _, err := s.Create("X", param.KindUndefined); err == nil {
		t.Fatalf("Create with undefined kind: got no error")
	}

	if _, err := s.Int(0, 5); err == nil {
		t.Fatalf("Int on unknown index: got no error")
	}

	if s.Connected(0, 5) {
		t.Fatalf("Connected on unknown index: got true")
	}
}
