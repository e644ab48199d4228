package kernel

// System call numbers, SYS_* in the original, in the order §4.I's table
// lists them. The number always arrives in the trap frame's rax and
// arguments in rdi, rsi, rdx (§6's ABI); this call set never needs more
// than three.
const (
	SysHalt = iota
	SysExit
	SysFork
	SysExec
	SysWait
	SysCreate
	SysRemove
	SysOpen
	SysFilesize
	SysRead
	SysWrite
	SysSeek
	SysTell
	SysClose
)

// Console is the collaborator the dispatcher reads fd 0 from and writes
// fd 1 to (§4.I rows 9/10); the hardware build wires this to the
// keyboard input buffer and the serial/VGA text console.
type Console interface {
	ReadByte() (byte, bool)
	Write(data []byte)
}

// Dispatcher routes a trapped SYS_* call to the process manager, the
// file collaborator, or the console, validating every user pointer
// argument before it is dereferenced (§4.I, §7's "bad user input in a
// user-process context terminates the caller").
type Dispatcher struct {
	pm      *ProcessManager
	fs      FileOpener
	console Console
	halt    func() // power-off primitive; nil in tests
}

// NewDispatcher builds a dispatcher bound to pm/fs/console; halt may be
// nil (SysHalt then becomes a no-op, which tests rely on).
func NewDispatcher(pm *ProcessManager, fs FileOpener, console Console, halt func()) *Dispatcher {
	return &Dispatcher{pm: pm, fs: fs, console: console, halt: halt}
}

// Dispatch executes one system call trapped into frame for thread t
// (running in address space as) and returns the value to install in
// rax on return, per §6's ABI. Failures that the table marks as "bad
// user input" kill the caller via ProcessManager.Exit(-1) instead of
// returning a sentinel, per §7.
func (d *Dispatcher) Dispatch(t *Thread, as *AddressSpace, frame TrapFrame) int64 {
	number := int64(frame.RAX)
	a0, a1 := frame.RDI, frame.RSI
	a2 := frame.RDX

	switch number {
	case SysHalt:
		if d.halt != nil {
			d.halt()
		}
		return 0

	case SysExit:
		d.pm.Exit(int(int32(a0)))
		return 0 // reached only in the pure layer, where Exit returns

	case SysFork:
		name, ok := d.pm.ReadCString(as, a0)
		if !ok {
			d.pm.Exit(-1)
			return 0
		}
		return d.pm.Fork(name, frame)

	case SysExec:
		cmdline, ok := d.pm.ReadCString(as, a0)
		if !ok {
			d.pm.Exit(-1)
			return 0
		}
		if _, ok := d.pm.Exec(cmdline); !ok {
			return -1
		}
		return 0 // reached on success only when no resumeHook is installed

	case SysWait:
		return d.pm.Wait(int64(a0))

	case SysCreate:
		path, ok := d.pm.ReadCString(as, a0)
		if !ok {
			d.pm.Exit(-1)
			return 0
		}
		if d.fs.Create(path, int64(a1)) {
			return 1
		}
		return 0

	case SysRemove:
		path, ok := d.pm.ReadCString(as, a0)
		if !ok {
			d.pm.Exit(-1)
			return 0
		}
		if d.fs.Remove(path) {
			return 1
		}
		return 0

	case SysOpen:
		path, ok := d.pm.ReadCString(as, a0)
		if !ok {
			d.pm.Exit(-1)
			return 0
		}
		f, ok := d.fs.Open(path)
		if !ok {
			return -1
		}
		fd, ok := t.proc.fds.Insert(f)
		if !ok {
			f.Close()
			return -1
		}
		return int64(fd)

	case SysFilesize:
		f, ok := t.proc.fds.Get(int(a0))
		if !ok {
			return -1
		}
		return f.Length()

	case SysRead:
		return d.sysRead(t, as, int(a0), a1, int(a2))

	case SysWrite:
		return d.sysWrite(t, as, int(a0), a1, int(a2))

	case SysSeek:
		if f, ok := t.proc.fds.Get(int(a0)); ok {
			f.Seek(int64(a1))
		}
		return 0

	case SysTell:
		f, ok := t.proc.fds.Get(int(a0))
		if !ok {
			return -1
		}
		return f.Tell()

	case SysClose:
		t.proc.fds.Close(int(a0))
		return 0

	default:
		d.pm.Exit(-1)
		return 0
	}
}

// sysRead implements SysRead's per-fd dispatch: fd 0 reads from the
// console byte-by-byte, fd >= 2 delegates to the open File, fd 1 or an
// unknown fd fails.
func (d *Dispatcher) sysRead(t *Thread, as *AddressSpace, fd int, bufAddr uint64, n int) int64 {
	switch fd {
	case FDStdin:
		buf := make([]byte, 0, n)
		for i := 0; i < n; i++ {
			b, ok := d.console.ReadByte()
			if !ok {
				break
			}
			buf = append(buf, b)
		}
		if !d.pm.CopyToUser(as, bufAddr, buf) {
			d.pm.Exit(-1)
			return 0
		}
		return int64(len(buf))

	case FDStdout:
		return -1

	default:
		f, ok := t.proc.fds.Get(fd)
		if !ok {
			return -1
		}
		tmp := make([]byte, n)
		read, ok := f.Read(tmp)
		if !ok {
			return -1
		}
		if !d.pm.CopyToUser(as, bufAddr, tmp[:read]) {
			d.pm.Exit(-1)
			return 0
		}
		return int64(read)
	}
}

// sysWrite implements SysWrite's per-fd dispatch: fd 1 writes to the
// console, fd >= 2 delegates to the open File, fd 0 or an unknown fd
// fails.
func (d *Dispatcher) sysWrite(t *Thread, as *AddressSpace, fd int, bufAddr uint64, n int) int64 {
	data, ok := d.pm.CopyFromUser(as, bufAddr, n)
	if !ok {
		d.pm.Exit(-1)
		return 0
	}

	switch fd {
	case FDStdout:
		d.console.Write(data)
		return int64(n)

	case FDStdin:
		return -1

	default:
		f, ok := t.proc.fds.Get(fd)
		if !ok {
			return -1
		}
		written, ok := f.Write(data)
		if !ok {
			return -1
		}
		return int64(written)
	}
}
