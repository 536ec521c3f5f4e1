package pickle

// Legacy name remapping for streams produced by Python2, applied by
// findClass when the protocol is < 3 and FixImports is on. The exact
// (module, name) mapping is consulted first, then the module mapping.

type moduleName struct {
	module, name string
}

// nameMapping remaps exact (module, name) pairs.
var nameMapping = map[moduleName]moduleName{
	{"__builtin__", "xrange"}:        {"builtins", "range"},
	{"__builtin__", "reduce"}:        {"functools", "reduce"},
	{"__builtin__", "intern"}:        {"sys", "intern"},
	{"__builtin__", "unichr"}:        {"builtins", "chr"},
	{"__builtin__", "unicode"}:       {"builtins", "str"},
	{"__builtin__", "long"}:          {"builtins", "int"},
	{"__builtin__", "basestring"}:    {"builtins", "str"},
	{"exceptions", "StandardError"}:  {"builtins", "Exception"},
	{"UserDict", "UserDict"}:         {"collections", "UserDict"},
	{"UserDict", "IterableUserDict"}: {"collections", "UserDict"},
	{"UserList", "UserList"}:         {"collections", "UserList"},
	{"UserString", "UserString"}:     {"collections", "UserString"},
	{"whichdb", "whichdb"}:           {"dbm", "whichdb"},
	{"itertools", "izip"}:            {"builtins", "zip"},
	{"itertools", "imap"}:            {"builtins", "map"},
	{"itertools", "ifilter"}:         {"builtins", "filter"},
	{"itertools", "ifilterfalse"}:    {"itertools", "filterfalse"},
	{"itertools", "izip_longest"}:    {"itertools", "zip_longest"},
	{"string", "maketrans"}:          {"bytes", "maketrans"},
	{"random", "WichmannHill"}:       {"random", "Random"},
	{"_socket", "fromfd"}:            {"socket", "fromfd"},
	{"urllib", "quote"}:              {"urllib.parse", "quote"},
	{"urllib", "unquote"}:            {"urllib.parse", "unquote"},
	{"urllib", "urlencode"}:          {"urllib.parse", "urlencode"},
	{"urllib", "url2pathname"}:       {"urllib.request", "url2pathname"},
	{"urllib", "pathname2url"}:       {"urllib.request", "pathname2url"},
	{"urllib", "getproxies"}:         {"urllib.request", "getproxies"},
	{"urllib2", "HTTPError"}:         {"urllib.error", "HTTPError"},
	{"urllib2", "URLError"}:          {"urllib.error", "URLError"},
}

// importMapping remaps module names.
var importMapping = map[string]string{
	"__builtin__":     "builtins",
	"copy_reg":        "copyreg",
	"Queue":           "queue",
	"SocketServer":    "socketserver",
	"ConfigParser":    "configparser",
	"repr":            "reprlib",
	"tkFileDialog":    "tkinter.filedialog",
	"tkSimpleDialog":  "tkinter.simpledialog",
	"tkColorChooser":  "tkinter.colorchooser",
	"tkCommonDialog":  "tkinter.commondialog",
	"Dialog":          "tkinter.dialog",
	"Tkdnd":           "tkinter.dnd",
	"tkFont":          "tkinter.font",
	"tkMessageBox":    "tkinter.messagebox",
	"ScrolledText":    "tkinter.scrolledtext",
	"Tkconstants":     "tkinter.constants",
	"Tix":             "tkinter.tix",
	"ttk":             "tkinter.ttk",
	"Tkinter":         "tkinter",
	"markupbase":      "_markupbase",
	"_winreg":         "winreg",
	"thread":          "_thread",
	"dummy_thread":    "_dummy_thread",
	"dbhash":          "dbm.bsd",
	"dumbdbm":         "dbm.dumb",
	"dbm":             "dbm.ndbm",
	"gdbm":            "dbm.gnu",
	"xmlrpclib":       "xmlrpc.client",
	"SimpleXMLRPCServer": "xmlrpc.server",
	"httplib":         "http.client",
	"htmlentitydefs":  "html.entities",
	"HTMLParser":      "html.parser",
	"Cookie":          "http.cookies",
	"cookielib":       "http.cookiejar",
	"BaseHTTPServer":  "http.server",
	"test.test_support": "test.support",
	"commands":        "subprocess",
	"urlparse":        "urllib.parse",
	"robotparser":     "urllib.robotparser",
	"urllib2":         "urllib.request",
	"anydbm":          "dbm",
	"_abcoll":         "collections.abc",
	"StringIO":        "io",
	"cStringIO":       "io",
	"cPickle":         "pickle",
	"copyreg":         "copyreg",
}

// fixImports applies the legacy remap: first the exact pair, then the module.
func fixImports(module, name string) (string, string) {
	if mapped, ok := nameMapping[moduleName{module, name}]; ok {
		return mapped.module, mapped.name
	}
	if mapped, ok := importMapping[module]; ok {
		return mapped, name
	}
	return module, name
}
