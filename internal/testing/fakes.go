package testing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/virtforge/virtforge/internal/pci"
	"github.com/virtforge/virtforge/internal/platform/probe"
	"github.com/virtforge/virtforge/internal/platform/virsh"
	"github.com/virtforge/virtforge/internal/provisioning"
	"github.com/virtforge/virtforge/internal/topology"
)

// CallLog records collaborator calls in order. Shared by the fakes so a
// test wiring several collaborators to one log sees a single timeline.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// Record appends a formatted call description.
func (l *CallLog) Record(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, v...))
}

// Calls returns the recorded calls in order.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// Contains reports whether any recorded call contains substr.
func (l *CallLog) Contains(substr string) bool {
	for _, c := range l.Calls() {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

// FakeManager is an in-memory hypervisor control plane. Domains and their
// attached hostdevs live in maps; every call is recorded.
type FakeManager struct {
	Log *CallLog

	// Err, when set, is returned by every mutating call.
	Err error
	// AttachErrFor fails AttachHostdev for specific addresses only.
	AttachErrFor map[string]error

	mu       sync.Mutex
	domains  map[string]string // name -> state
	hostdevs map[string][]pci.Address
}

// NewFakeManager returns an empty fake control plane.
func NewFakeManager(log *CallLog) *FakeManager {
	if log == nil {
		log = &CallLog{}
	}
	return &FakeManager{
		Log:      log,
		domains:  make(map[string]string),
		hostdevs: make(map[string][]pci.Address),
	}
}

// AddDomain seeds a defined domain in the given state.
func (m *FakeManager) AddDomain(name, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[name] = state
}

// Hostdevs returns the devices currently attached to a domain.
func (m *FakeManager) Hostdevs(name string) []pci.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pci.Address(nil), m.hostdevs[name]...)
}

func (m *FakeManager) DomainExists(_ context.Context, name string) (bool, error) {
	m.Log.Record("virsh.DomainExists(%s)", name)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.domains[name]
	return ok, nil
}

func (m *FakeManager) State(_ context.Context, name string) (virsh.DomainState, error) {
	m.Log.Record("virsh.State(%s)", name)
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.domains[name]
	if !ok {
		return virsh.StateNoDomain, nil
	}
	return virsh.DomainState(st), nil
}

func (m *FakeManager) Define(_ context.Context, domainXML []byte) error {
	m.Log.Record("virsh.Define(%d bytes)", len(domainXML))
	if m.Err != nil {
		return m.Err
	}
	name := nameFromXML(domainXML)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.domains[name]; !ok {
		m.domains[name] = "shut off"
	}
	return nil
}

func (m *FakeManager) Undefine(_ context.Context, name string) error {
	m.Log.Record("virsh.Undefine(%s)", name)
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.domains, name)
	delete(m.hostdevs, name)
	return nil
}

func (m *FakeManager) Start(_ context.Context, name string) error {
	m.Log.Record("virsh.Start(%s)", name)
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[name] = "running"
	return nil
}

func (m *FakeManager) Shutdown(_ context.Context, name string) error {
	m.Log.Record("virsh.Shutdown(%s)", name)
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[name] = "shut off"
	return nil
}

func (m *FakeManager) ForceStop(_ context.Context, name string) error {
	m.Log.Record("virsh.ForceStop(%s)", name)
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains[name] = "shut off"
	return nil
}

func (m *FakeManager) AttachedHostdevs(_ context.Context, name string) ([]pci.Address, error) {
	m.Log.Record("virsh.AttachedHostdevs(%s)", name)
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pci.Address(nil), m.hostdevs[name]...), nil
}

func (m *FakeManager) AttachHostdev(_ context.Context, name string, addr pci.Address) error {
	m.Log.Record("virsh.AttachHostdev(%s, %s)", name, addr)
	if m.Err != nil {
		return m.Err
	}
	if err, ok := m.AttachErrFor[addr.String()]; ok {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hostdevs[name] = append(m.hostdevs[name], addr)
	return nil
}

func (m *FakeManager) DetachHostdev(_ context.Context, name string, addr pci.Address) error {
	m.Log.Record("virsh.DetachHostdev(%s, %s)", name, addr)
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.hostdevs[name][:0]
	for _, a := range m.hostdevs[name] {
		if a != addr {
			kept = append(kept, a)
		}
	}
	m.hostdevs[name] = kept
	return nil
}

func (m *FakeManager) PinVCPU(_ context.Context, name string, vcpu int, cpuset []int) error {
	m.Log.Record("virsh.PinVCPU(%s, %d, %v)", name, vcpu, cpuset)
	return m.Err
}

func (m *FakeManager) PinEmulator(_ context.Context, name string, cpuset []int) error {
	m.Log.Record("virsh.PinEmulator(%s, %v)", name, cpuset)
	return m.Err
}

func (m *FakeManager) SetNUMAPolicy(_ context.Context, name string, node int) error {
	m.Log.Record("virsh.SetNUMAPolicy(%s, %d)", name, node)
	return m.Err
}

// nameFromXML pulls <name>...</name> out of a domain document; good
// enough for the fake.
func nameFromXML(doc []byte) string {
	s := string(doc)
	start := strings.Index(s, "<name>")
	end := strings.Index(s, "</name>")
	if start < 0 || end < 0 || end < start {
		return "unnamed"
	}
	return s[start+len("<name>") : end]
}

// FakeInstaller is an in-memory package manager.
type FakeInstaller struct {
	Log *CallLog
	Err error

	mu        sync.Mutex
	installed map[string]bool
}

// NewFakeInstaller returns an empty fake package manager.
func NewFakeInstaller(log *CallLog) *FakeInstaller {
	if log == nil {
		log = &CallLog{}
	}
	return &FakeInstaller{Log: log, installed: make(map[string]bool)}
}

// Installed reports whether a package has been installed.
func (f *FakeInstaller) Installed(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed[name]
}

func (f *FakeInstaller) Install(_ context.Context, packages ...string) error {
	f.Log.Record("pkgmgr.Install(%s)", strings.Join(packages, ","))
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range packages {
		f.installed[p] = true
	}
	return nil
}

func (f *FakeInstaller) Upgrade(_ context.Context, packages ...string) error {
	f.Log.Record("pkgmgr.Upgrade(%s)", strings.Join(packages, ","))
	return f.Err
}

// FakeProber serves canned hardware answers.
type FakeProber struct {
	Log *CallLog

	Host   *topology.Host
	NICs   []probe.NIC
	Blocks []probe.BlockDevice
	Err    error
}

// NewFakeProber returns a prober reporting the given topology.
func NewFakeProber(log *CallLog, host *topology.Host) *FakeProber {
	if log == nil {
		log = &CallLog{}
	}
	return &FakeProber{Log: log, Host: host}
}

func (f *FakeProber) Topology(_ context.Context) (*topology.Host, error) {
	f.Log.Record("probe.Topology()")
	return f.Host, f.Err
}

func (f *FakeProber) NetworkInterfaces(_ context.Context) ([]probe.NIC, error) {
	f.Log.Record("probe.NetworkInterfaces()")
	return f.NICs, f.Err
}

func (f *FakeProber) BlockDevices(_ context.Context) ([]probe.BlockDevice, error) {
	f.Log.Record("probe.BlockDevices()")
	return f.Blocks, f.Err
}

// FakeRunner is an in-memory system command runner.
type FakeRunner struct {
	Log *CallLog
	Err error
	// Outputs maps "name arg arg ..." to canned stdout.
	Outputs map[string]string
}

// NewFakeRunner returns a runner that records commands and succeeds.
func NewFakeRunner(log *CallLog) *FakeRunner {
	if log == nil {
		log = &CallLog{}
	}
	return &FakeRunner{Log: log, Outputs: make(map[string]string)}
}

func (f *FakeRunner) Run(_ context.Context, name string, args ...string) error {
	f.Log.Record("system.Run(%s %s)", name, strings.Join(args, " "))
	return f.Err
}

func (f *FakeRunner) Output(_ context.Context, name string, args ...string) (string, error) {
	key := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.Log.Record("system.Output(%s)", key)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Outputs[key], nil
}

// RecordingObserver captures pipeline events for assertions.
type RecordingObserver struct {
	mu     sync.Mutex
	events []provisioning.Event
	lines  []string
	fields map[string]string
}

// NewRecordingObserver returns an empty observer.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{fields: make(map[string]string)}
}

func (o *RecordingObserver) Printf(format string, v ...interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lines = append(o.lines, fmt.Sprintf(format, v...))
}

func (o *RecordingObserver) Event(event provisioning.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *RecordingObserver) WithFields(fields map[string]string) provisioning.Observer {
	// Field scoping is irrelevant to assertions; share the recording.
	return o
}

// Events returns the recorded events in order.
func (o *RecordingObserver) Events() []provisioning.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]provisioning.Event(nil), o.events...)
}

// EventsOfType filters recorded events by type.
func (o *RecordingObserver) EventsOfType(t provisioning.EventType) []provisioning.Event {
	var out []provisioning.Event
	for _, e := range o.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Lines returns the recorded Printf output in order.
func (o *RecordingObserver) Lines() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.lines...)
}
