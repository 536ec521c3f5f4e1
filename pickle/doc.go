// Package pickle implements the pickle virtual machine: a stack-oriented
// interpreter over the binary opcode stream produced by Python's pickle
// protocol, versions 0 through 5.
//
// Use Machine to decode one stream:
//
//	m := pickle.NewMachine(r)
//	obj, err := m.Load() // obj is any, representing the decoded object
//
// Or drive it one instruction at a time, which is what the debugger does:
//
//	m := pickle.NewMachine(r)
//	for m.Status() == pickle.StatusRunning {
//		if err := m.Step(); err != nil {
//			break
//		}
//		inspect(m.Stack(), m.MetaStack(), m.Memo())
//	}
//
// The following table summarizes the mapping of stream objects to Go:
//
//	Python		Go
//	------		--
//
//	None		pickle.None
//	bool		bool
//	int		int64 or *big.Int
//	float		float64
//	str		string
//	bytes		pickle.Bytes
//	str (py2)	pickle.ByteString
//	bytearray	*pickle.ByteArray
//	tuple		pickle.Tuple
//	list		*pickle.List
//	dict		pickle.Dict
//	set		pickle.Set
//	frozenset	pickle.FrozenSet
//
// Classes and callables resolve through an injected Importer. By default
// everything resolves symbolically to Class values and instances stay
// symbolic shells (Call, *Object), so it is safe to decode pickles from
// untrusted sources: nothing in the stream can make the machine execute
// host code. Hosts that do want real construction register concrete values
// in a Registry and hand it to the machine via Config.Importer; resolved
// values may implement Callable, Newable, NewableEx and StateSetter to take
// part in REDUCE/NEWOBJ/NEWOBJ_EX/BUILD.
//
// Mutable containers (*List, Dict, Set, *ByteArray, *Object) are shared by
// reference between the stack, the memo and their parent containers, which
// is how the protocol encodes shared and cyclic structures.
package pickle
