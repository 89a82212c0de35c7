package minilog

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"
)

func TestFilter(t *testing.T) {
	sink1 := new(bytes.Buffer)

	AddLogger("sink1Level", sink1, DEBUG, false)
	defer DelLogger("sink1Level")

	testString := "test 123"
	testString2 := "test 456"

	Debugln(testString)

	s1 := sink1.String()
	if !strings.Contains(s1, testString) {
		t.Fatal("sink1 got:", s1)
	}

	AddFilter("sink1Level", "minilog_test")

	Debugln(testString2)

	s1 = sink1.String()
	if strings.Contains(s1, testString2) {
		t.Fatal("sink1 got:", s1)
	}

	DelFilter("sink1Level", "minilog_test")

	Debugln(testString2)

	s1 = sink1.String()
	if !strings.Contains(s1, testString2) {
		t.Fatal("sink1 got:", s1)
	}
}

func TestMultilog(t *testing.T) {
	sink1 := new(bytes.Buffer)
	sink2 := new(bytes.Buffer)

	AddLogger("sink1", sink1, DEBUG, false)
	AddLogger("sink2", sink2, DEBUG, false)
	defer DelLogger("sink1")
	defer DelLogger("sink2")

	testString := "test 123"

	Debugln(testString)

	if !strings.Contains(sink1.String(), testString) {
		t.Fatal("sink1 got:", sink1.String())
	}
	if !strings.Contains(sink2.String(), testString) {
		t.Fatal("sink2 got:", sink2.String())
	}
}

func TestLogLevels(t *testing.T) {
	sink1 := new(bytes.Buffer)
	sink2 := new(bytes.Buffer)

	AddLogger("sink1Level2", sink1, DEBUG, false)
	AddLogger("sink2Level2", sink2, INFO, false)
	defer DelLogger("sink1Level2")
	defer DelLogger("sink2Level2")

	testString := "test 123"

	Debugln(testString)

	if !strings.Contains(sink1.String(), testString) {
		t.Fatal("sink1 got:", sink1.String())
	}
	if sink2.Len() != 0 {
		t.Fatal("sink2 got:", sink2.String())
	}
}

func TestDelLogger(t *testing.T) {
	sink := new(bytes.Buffer)

	AddLogger("sinkDel", sink, DEBUG, false)

	testString := "test 123"
	testString2 := "test 456"

	Debug(testString)

	s, err := sink.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(s, testString) {
		t.Fatal("sink got:", s)
	}

	DelLogger("sinkDel")

	Debug(testString2)

	s, err = sink.ReadString('\n')
	if err != nil && err != io.EOF {
		t.Fatal(err)
	}
	if len(s) != 0 {
		t.Fatal("sink got:", s)
	}
}

func TestLogAll(t *testing.T) {
	sink := new(bytes.Buffer)
	source := bytes.NewBufferString("line_1\nline_2\nline_3")

	AddLogger("sinkAll", sink, DEBUG, false)
	defer DelLogger("sinkAll")

	LogAll(source, DEBUG, "test")
	time.Sleep(200 * time.Millisecond) // allow the LogAll goroutine to finish

	out := sink.String()
	for _, want := range []string{"line_1", "line_2", "line_3"} {
		if !strings.Contains(out, want) {
			t.Fatal("sink missing", want, "got:", out)
		}
	}
}

func TestLevelInt(t *testing.T) {
	cases := map[string]Level{
		"debug": DEBUG,
		"info":  INFO,
		"warn":  WARN,
		"error": ERROR,
		"fatal": FATAL,
	}
	for s, want := range cases {
		got, err := LevelInt(s)
		if err != nil {
			t.Fatalf("LevelInt(%q): %v", s, err)
		}
		if got != want {
			t.Fatalf("LevelInt(%q) = %v, want %v", s, got, want)
		}
	}

	if _, err := LevelInt("bogus"); err == nil {
		t.Fatal("expected error for invalid level")
	}
}
